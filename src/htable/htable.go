// Package htable implements a generic open-chaining hash table: a
// hand-rolled table rather than Go's builtin map, so kernel-resident
// bookkeeping stays an explicit, inspectable structure.
package htable

const nilIdx int32 = -1

type entry[K comparable, V any] struct {
	key  K
	val  V
	next int32
	used bool
}

// Htable is a chained hash table from K to V.
type Htable[K comparable, V any] struct {
	buckets []int32
	entries []entry[K, V]
	free    int32
	hash    func(K) uint32
	count   int
}

// New constructs a table with nbuckets buckets, hashed by hash. The
// bucket count does not grow; callers size it for the maximum
// expected load.
func New[K comparable, V any](nbuckets int, hash func(K) uint32) *Htable[K, V] {
	h := &Htable[K, V]{
		buckets: make([]int32, nbuckets),
		free:    nilIdx,
		hash:    hash,
	}
	for i := range h.buckets {
		h.buckets[i] = nilIdx
	}
	return h
}

func (h *Htable[K, V]) bucket(k K) uint32 {
	return h.hash(k) % uint32(len(h.buckets))
}

func (h *Htable[K, V]) alloc() int32 {
	if h.free != nilIdx {
		idx := h.free
		h.free = h.entries[idx].next
		return idx
	}
	h.entries = append(h.entries, entry[K, V]{})
	return int32(len(h.entries) - 1)
}

// Put inserts or overwrites the value for k.
func (h *Htable[K, V]) Put(k K, v V) {
	b := h.bucket(k)
	for i := h.buckets[b]; i != nilIdx; i = h.entries[i].next {
		if h.entries[i].key == k {
			h.entries[i].val = v
			return
		}
	}
	idx := h.alloc()
	h.entries[idx] = entry[K, V]{key: k, val: v, next: h.buckets[b], used: true}
	h.buckets[b] = idx
	h.count++
}

// Get returns the value for k and whether it was present.
func (h *Htable[K, V]) Get(k K) (V, bool) {
	b := h.bucket(k)
	for i := h.buckets[b]; i != nilIdx; i = h.entries[i].next {
		if h.entries[i].key == k {
			return h.entries[i].val, true
		}
	}
	var zero V
	return zero, false
}

// Del removes k, if present.
func (h *Htable[K, V]) Del(k K) {
	b := h.bucket(k)
	prev := nilIdx
	for i := h.buckets[b]; i != nilIdx; i = h.entries[i].next {
		if h.entries[i].key == k {
			if prev == nilIdx {
				h.buckets[b] = h.entries[i].next
			} else {
				h.entries[prev].next = h.entries[i].next
			}
			h.entries[i] = entry[K, V]{next: h.free}
			h.free = i
			h.count--
			return
		}
		prev = i
	}
}

// Len returns the number of live entries.
func (h *Htable[K, V]) Len() int { return h.count }

// Each calls f for every live entry, in unspecified order.
func (h *Htable[K, V]) Each(f func(K, V)) {
	for _, e := range h.entries {
		if e.used {
			f(e.key, e.val)
		}
	}
}
