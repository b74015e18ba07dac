package observability

import "testing"

func TestStageWindowSnapshotStats(t *testing.T) {
	w := NewStageWindow(8)
	for _, ms := range []float64{100, 200, 300, 400} {
		w.Observe("synthesize", ms)
	}
	w.ObserveIndicator("avatar_fallback")
	w.ObserveIndicator("avatar_fallback")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	st := snap.Stages[0]
	if st.Stage != "synthesize" || st.Samples != 4 {
		t.Fatalf("unexpected stage stats: %+v", st)
	}
	if st.LastMS != 400 {
		t.Fatalf("LastMS = %v, want 400", st.LastMS)
	}
	if st.AvgMS != 250 {
		t.Fatalf("AvgMS = %v, want 250", st.AvgMS)
	}
	if st.P50MS != 250 {
		t.Fatalf("P50MS = %v, want 250", st.P50MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("unexpected indicators: %+v", snap.Indicators)
	}
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := NewStageWindow(4)
	for i := 0; i < 10; i++ {
		w.Observe("render", float64(i)*10)
	}
	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	if snap.Stages[0].Samples != 4 {
		t.Fatalf("Samples = %d, want window size 4", snap.Stages[0].Samples)
	}
	if snap.Stages[0].LastMS != 90 {
		t.Fatalf("LastMS = %v, want 90", snap.Stages[0].LastMS)
	}
}

func TestStageWindowIgnoresInvalidInput(t *testing.T) {
	w := NewStageWindow(4)
	w.Observe("", 100)
	w.Observe("render", -1)
	w.ObserveIndicator("  ")
	snap := w.Snapshot()
	if len(snap.Stages) != 0 || len(snap.Indicators) != 0 {
		t.Fatalf("invalid observations should be dropped: %+v", snap)
	}
}

func TestStageWindowReset(t *testing.T) {
	w := NewStageWindow(4)
	w.Observe("render", 10)
	w.Reset()
	if snap := w.Snapshot(); len(snap.Stages) != 0 {
		t.Fatalf("Reset should clear stages: %+v", snap)
	}
}
