package ledger

import (
	"testing"

	"quantick/internal/domain"
)

func TestLedgerOpenClose(t *testing.T) {
	var l Ledger
	if _, ok := l.Last(); ok {
		t.Fatal("empty ledger has a last trade")
	}
	if _, ok := l.OpenTrade(); ok {
		t.Fatal("empty ledger has an open trade")
	}

	l.Open(domain.Short, 2, 3, 333)
	open, ok := l.OpenTrade()
	if !ok || open.Direction != domain.Short || open.EntryTick != 2 || open.EntryPrice != 3 {
		t.Fatalf("OpenTrade() = %+v, %v", open, ok)
	}

	closed := l.Close(4, 5)
	if !closed.Closed || closed.ExitTick != 4 || closed.ExitPrice != 5 || closed.Size != 333 {
		t.Errorf("Close() = %+v", closed)
	}
	if _, ok := l.OpenTrade(); ok {
		t.Error("trade still open after Close")
	}

	// Flip on the exit tick.
	l.Open(domain.Long, 4, 5, 100)
	if l.Len() != 2 || l.ClosedCount() != 1 {
		t.Errorf("Len/ClosedCount = %d/%d, want 2/1", l.Len(), l.ClosedCount())
	}
	if got := l.Closed(); len(got) != 1 || got[0] != closed {
		t.Errorf("Closed() = %+v, want [%+v]", got, closed)
	}
	if got, _ := l.Last(); got.Direction != domain.Long || got.Closed {
		t.Errorf("Last() = %+v", got)
	}
	if got := l.Trades(); len(got) != 2 || got[0] != closed {
		t.Errorf("Trades() = %+v", got)
	}
}

func TestLedgerSnapshotsAreCopies(t *testing.T) {
	l := New()
	l.Open(domain.Long, 0, 1, 10)
	before := l.Trades()
	l.Close(3, 2)

	if before[0].Closed {
		t.Error("earlier snapshot changed when the trade closed")
	}
	after := l.Trades()
	after[0].ExitPrice = 99
	if l.Trades()[0].ExitPrice != 2 {
		t.Error("mutating a snapshot changed the ledger")
	}

	// Every earlier entry of the old snapshot is unchanged in the new one,
	// except the last one transitioning to closed.
	now := l.Trades()
	for i := 0; i < len(before)-1; i++ {
		if before[i] != now[i] {
			t.Errorf("entry %d changed: %+v -> %+v", i, before[i], now[i])
		}
	}
}

func TestLedgerContractViolations(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s: expected panic", name)
			}
		}()
		fn()
	}

	mustPanic("close with nothing open", func() { New().Close(1, 1) })
	mustPanic("open while open", func() {
		l := New()
		l.Open(domain.Long, 0, 1, 1)
		l.Open(domain.Short, 1, 1, 1)
	})
	mustPanic("close on entry tick", func() {
		l := New()
		l.Open(domain.Long, 3, 1, 1)
		l.Close(3, 2)
	})
	mustPanic("close twice", func() {
		l := New()
		l.Open(domain.Long, 0, 1, 1)
		l.Close(1, 2)
		l.Close(2, 2)
	})
	mustPanic("open before last exit", func() {
		l := New()
		l.Open(domain.Long, 0, 1, 1)
		l.Close(5, 2)
		l.Open(domain.Long, 4, 1, 1)
	})
}
