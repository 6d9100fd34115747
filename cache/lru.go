package cache

import (
	"github.com/lpabon/godbc"
)

const nilSlot int32 = -1

// LRU is a doubly-linked list over slot ids 0..n-1. The front is the
// least-recently-used end, the back the most-recently-used one.
type LRU struct {
	prev  []int32
	next  []int32
	in    []bool
	front int32
	back  int32
	n     uint64
}

func MkLRU(nslots uint64) *LRU {
	l := &LRU{
		prev:  make([]int32, nslots),
		next:  make([]int32, nslots),
		in:    make([]bool, nslots),
		front: nilSlot,
		back:  nilSlot,
	}
	for i := range l.prev {
		l.prev[i] = nilSlot
		l.next[i] = nilSlot
	}
	return l
}

func (l *LRU) Len() uint64 {
	return l.n
}

func (l *LRU) Contains(id int32) bool {
	return l.in[id]
}

// PushMRU appends id at the most-recently-used end.
func (l *LRU) PushMRU(id int32) {
	godbc.Require(!l.in[id], "slot already on lru", id)
	l.prev[id] = l.back
	l.next[id] = nilSlot
	if l.back == nilSlot {
		l.front = id
	} else {
		l.next[l.back] = id
	}
	l.back = id
	l.in[id] = true
	l.n++
}

// PushLRU inserts id at the least-recently-used end, making it the next
// eviction candidate.
func (l *LRU) PushLRU(id int32) {
	godbc.Require(!l.in[id], "slot already on lru", id)
	l.next[id] = l.front
	l.prev[id] = nilSlot
	if l.front == nilSlot {
		l.back = id
	} else {
		l.prev[l.front] = id
	}
	l.front = id
	l.in[id] = true
	l.n++
}

func (l *LRU) PeekLRU() (int32, bool) {
	if l.front == nilSlot {
		return nilSlot, false
	}
	return l.front, true
}

func (l *LRU) PopLRU() (int32, bool) {
	id, ok := l.PeekLRU()
	if !ok {
		return nilSlot, false
	}
	l.Remove(id)
	return id, true
}

// Remove splices id out without touching the order of the others.
func (l *LRU) Remove(id int32) {
	godbc.Require(l.in[id], "slot not on lru", id)
	p := l.prev[id]
	n := l.next[id]
	if p == nilSlot {
		l.front = n
	} else {
		l.next[p] = n
	}
	if n == nilSlot {
		l.back = p
	} else {
		l.prev[n] = p
	}
	l.prev[id] = nilSlot
	l.next[id] = nilSlot
	l.in[id] = false
	l.n--
	godbc.Ensure(l.n > 0 || (l.front == nilSlot && l.back == nilSlot))
}

// Walk visits slots from the least- to the most-recently-used end until f
// returns false.
func (l *LRU) Walk(f func(id int32) bool) {
	for id := l.front; id != nilSlot; id = l.next[id] {
		if !f(id) {
			return
		}
	}
}
