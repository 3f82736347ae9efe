package selection

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOrderedIgnoresToggleOrder(t *testing.T) {
	s := New()
	for _, i := range []int{9, 0, 5} {
		if !s.Toggle(i) {
			t.Fatalf("toggle %d should select", i)
		}
	}
	if diff := cmp.Diff([]int{0, 5, 9}, s.Ordered()); diff != "" {
		t.Fatalf("ordered (-want +got):\n%s", diff)
	}
}

func TestToggleTwiceDeselects(t *testing.T) {
	var s Set
	s.Toggle(3)
	if s.Toggle(3) {
		t.Fatal("second toggle should deselect")
	}
	if s.Contains(3) || s.Len() != 0 {
		t.Fatalf("set still holds 3: %v", s.Ordered())
	}
}

func TestClearReplaceAll(t *testing.T) {
	s := New()
	s.Replace([]int{4, 1, 4})
	if diff := cmp.Diff([]int{1, 4}, s.Ordered()); diff != "" {
		t.Fatalf("replace (-want +got):\n%s", diff)
	}
	s.All(3)
	if diff := cmp.Diff([]int{0, 1, 2}, s.Ordered()); diff != "" {
		t.Fatalf("all (-want +got):\n%s", diff)
	}
	s.Clear()
	if got := s.Ordered(); len(got) != 0 {
		t.Fatalf("cleared set = %v", got)
	}
}

func TestConcurrentToggle(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Toggle(i)
			_ = s.Ordered()
		}(i)
	}
	wg.Wait()
	if s.Len() != 50 {
		t.Fatalf("len = %d, want 50", s.Len())
	}
}
