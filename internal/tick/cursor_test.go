package tick

import (
	"testing"
)

func TestCursorVisitsRangeOnce(t *testing.T) {
	c := NewCursor(0, 4)
	var got []int
	for tk := range c.Ticks() {
		got = append(got, tk)
	}
	want := []int{0, 1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tick[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	// Exhausted cursors never restart.
	if c.Next() {
		t.Error("Next() returned true after exhaustion")
	}
	for range c.Ticks() {
		t.Fatal("Ticks() yielded after exhaustion")
	}
	if !c.Done() {
		t.Error("Done() = false after exhaustion")
	}
	if c.Current() != 4 {
		t.Errorf("Current() after exhaustion = %d, want 4", c.Current())
	}
}

func TestCursorNonZeroFirst(t *testing.T) {
	c := NewCursor(3, 5)
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	if !c.Next() || c.Current() != 3 {
		t.Fatalf("first tick = %d, want 3", c.Current())
	}
}

func TestCursorEmptyRange(t *testing.T) {
	c := NewCursor(0, -1)
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
	if c.Next() {
		t.Error("Next() on empty range returned true")
	}
}

func TestCursorBreakResumes(t *testing.T) {
	c := NewCursor(0, 3)
	for tk := range c.Ticks() {
		if tk == 1 {
			break
		}
	}
	var rest []int
	for tk := range c.Ticks() {
		rest = append(rest, tk)
	}
	if len(rest) != 2 || rest[0] != 2 || rest[1] != 3 {
		t.Errorf("resumed ticks = %v, want [2 3]", rest)
	}
}

func TestClockSharesCursor(t *testing.T) {
	c := NewCursor(0, 2)
	a, b := c.Clock(), c.Clock()
	if _, ok := a.(*Cursor); ok {
		t.Fatal("Clock() exposes the advancing cursor")
	}
	for tk := range c.Ticks() {
		if a.Current() != tk || b.Current() != tk {
			t.Errorf("clocks at %d/%d, cursor at %d", a.Current(), b.Current(), tk)
		}
	}
	if a.First() != 0 || a.Last() != 2 {
		t.Errorf("clock range = [%d, %d], want [0, 2]", a.First(), a.Last())
	}
}

func TestCursorContractViolations(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s: expected panic", name)
			}
		}()
		fn()
	}

	mustPanic("Current before Next", func() { NewCursor(0, 3).Current() })
	mustPanic("clock before Next", func() { NewCursor(0, 3).Clock().Current() })
	mustPanic("Check below range", func() { NewCursor(2, 3).Check(1) })
	mustPanic("Check above range", func() { NewCursor(2, 3).Check(4) })
	mustPanic("clock Check above range", func() { NewCursor(2, 3).Clock().Check(4) })
	mustPanic("inverted range", func() { NewCursor(5, 2) })

	// In-range checks do not panic.
	NewCursor(2, 3).Check(3)
	NewCursor(2, 3).Clock().Check(2)
}
