package htable

import "testing"

func u32hash(k uint32) uint32 { return k }

func TestPutGetDel(t *testing.T) {
	h := New[uint32, string](8, u32hash)
	h.Put(1, "one")
	h.Put(9, "nine") // collides with 1 in an 8-bucket table
	h.Put(2, "two")

	if v, ok := h.Get(1); !ok || v != "one" {
		t.Fatalf("Get(1) = %q, %v", v, ok)
	}
	if v, ok := h.Get(9); !ok || v != "nine" {
		t.Fatalf("Get(9) = %q, %v", v, ok)
	}
	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}

	h.Del(1)
	if _, ok := h.Get(1); ok {
		t.Fatal("expected 1 to be deleted")
	}
	if v, ok := h.Get(9); !ok || v != "nine" {
		t.Fatal("deleting 1 must not disturb its bucket-mate 9")
	}
	if h.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", h.Len())
	}
}

func TestPutOverwrites(t *testing.T) {
	h := New[uint32, int](4, u32hash)
	h.Put(3, 100)
	h.Put(3, 200)
	if v, _ := h.Get(3); v != 200 {
		t.Fatalf("Get(3) = %d, want 200", v)
	}
	if h.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.Len())
	}
}

func TestFreeListReusesSlots(t *testing.T) {
	h := New[uint32, int](4, u32hash)
	h.Put(1, 1)
	h.Del(1)
	h.Put(2, 2)
	if len(h.entries) != 1 {
		t.Fatalf("expected the freed slot to be reused, have %d entries", len(h.entries))
	}
}

func TestEachVisitsAllLiveEntries(t *testing.T) {
	h := New[uint32, int](4, u32hash)
	want := map[uint32]int{1: 10, 2: 20, 3: 30}
	for k, v := range want {
		h.Put(k, v)
	}
	h.Del(2)
	delete(want, 2)
	got := map[uint32]int{}
	h.Each(func(k uint32, v int) { got[k] = v })
	if len(got) != len(want) {
		t.Fatalf("Each visited %d entries, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("entry %d = %d, want %d", k, got[k], v)
		}
	}
}
