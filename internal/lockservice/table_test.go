package lockservice

import (
	"reflect"
	"testing"
)

func TestSortedWaitersIsDeterministic(t *testing.T) {
	l := newLockState()
	l.insertWaiter("charlie")
	l.insertWaiter("alpha")
	l.insertWaiter("bravo")

	want := []string{"alpha", "bravo", "charlie"}
	got := l.sortedWaiters()

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sortedWaiters() = %v, want %v", got, want)
	}
}

func TestEnsureCreatesOnlyOnce(t *testing.T) {
	table := NewLockTable()

	first := table.ensure(42)
	second := table.ensure(42)

	if first != second {
		t.Fatalf("ensure(42) returned two distinct records")
	}
	if table.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", table.Count())
	}
}

func TestLookupDoesNotCreate(t *testing.T) {
	table := NewLockTable()

	if _, ok := table.lookup(42); ok {
		t.Fatalf("lookup() on an untouched table unexpectedly found a record")
	}
	if table.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", table.Count())
	}
}

func TestReplyCodeValues(t *testing.T) {
	cases := map[ReplyCode]int32{
		OK:     0,
		RETRY:  2,
		NOENT:  3,
		RPCERR: 4,
	}

	for code, want := range cases {
		if int32(code) != want {
			t.Fatalf("%s = %d, want %d", code, int32(code), want)
		}
	}
}
