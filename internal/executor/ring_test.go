package executor

import "testing"

func TestResultLogEviction(t *testing.T) {
	l := newResultLog(3)

	for i := uint64(1); i <= 5; i++ {
		l.Append(TradeResult{ID: i})
	}

	if l.Len() != 3 {
		t.Fatalf("log should hold at most 3 entries, got %d", l.Len())
	}

	recent := l.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(recent))
	}
	for i, want := range []uint64{5, 4, 3} {
		if recent[i].ID != want {
			t.Fatalf("entry %d should be trade %d, got %d", i, want, recent[i].ID)
		}
	}
}

func TestResultLogRecentLimit(t *testing.T) {
	l := newResultLog(10)
	for i := uint64(1); i <= 4; i++ {
		l.Append(TradeResult{ID: i})
	}

	recent := l.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].ID != 4 || recent[1].ID != 3 {
		t.Fatalf("newest first expected, got %d, %d", recent[0].ID, recent[1].ID)
	}
}

func TestResultLogEmpty(t *testing.T) {
	l := newResultLog(5)
	if got := l.Recent(10); len(got) != 0 {
		t.Fatalf("empty log should return nothing, got %d", len(got))
	}
}
