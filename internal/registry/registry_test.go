package registry

import (
	"sync"
	"testing"
)

type fakeSession struct {
	callID string
}

func TestAddGetRemove(t *testing.T) {
	r := New[*fakeSession]()

	s := &fakeSession{callID: "C1"}
	if err := r.Add("C1", s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := r.Get("C1")
	if !ok || got != s {
		t.Fatalf("Get(C1) = %v, %v; want the registered session", got, ok)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}

	r.Remove("C1")
	if _, ok := r.Get("C1"); ok {
		t.Error("expected C1 to be gone after Remove")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestAdd_DuplicateRejected(t *testing.T) {
	r := New[*fakeSession]()
	if err := r.Add("C1", &fakeSession{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Add("C1", &fakeSession{}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRemove_AbsentIsNoop(t *testing.T) {
	r := New[*fakeSession]()
	r.Remove("nope") // must not panic
}

func TestRange(t *testing.T) {
	r := New[*fakeSession]()
	for _, id := range []string{"C1", "C2", "C3"} {
		if err := r.Add(id, &fakeSession{callID: id}); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	seen := map[string]bool{}
	r.Range(func(id string, s *fakeSession) bool {
		seen[id] = true
		return true
	})
	if len(seen) != 3 {
		t.Errorf("ranged over %d sessions, want 3", len(seen))
	}

	// Early exit.
	count := 0
	r.Range(func(string, *fakeSession) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("range visited %d after stop, want 1", count)
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('A' + n%26))
			_ = r.Add(id, n)
			r.Get(id)
			r.Len()
			r.Remove(id)
		}(i)
	}
	wg.Wait()
}
