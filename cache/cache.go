// Package cache holds the two lookup structures of the buffer cache: a
// hash index from block identity to arena slot, and an index-based LRU
// list over the slots that currently have no holders.
//
// Slots are plain integers into an arena owned by the caller, so neither
// structure holds pointers into it and the arena can never be aliased
// through a stale link.
package cache

import (
	"fmt"

	"github.com/lpabon/godbc"
	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-lmfs/common"
)

// Key is the identity of a cached block.
type Key struct {
	Dev  common.Dev
	Bnum common.Bnum
}

func MkKey(dev common.Dev, bnum common.Bnum) Key {
	return Key{Dev: dev, Bnum: bnum}
}

func (k Key) String() string {
	return fmt.Sprintf("%v:%d", k.Dev, k.Bnum)
}

// DuplicateError is the panic value of an Index insert for a key that is
// already present.
type DuplicateError struct {
	Key      Key
	Existing int32
	New      int32
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("cache: duplicate insert of %v (slot %d, existing slot %d)",
		e.Key, e.New, e.Existing)
}

// Index maps a block identity to the slot holding it. Keys are unique.
type Index struct {
	slots map[Key]int32
}

func MkIndex(sz uint64) *Index {
	return &Index{
		slots: make(map[Key]int32, sz),
	}
}

func (idx *Index) Insert(k Key, slot int32) {
	godbc.Require(slot >= 0, "negative slot", slot)
	if old, ok := idx.slots[k]; ok {
		panic(&DuplicateError{Key: k, Existing: old, New: slot})
	}
	util.DPrintf(5, "index: insert %v -> %d\n", k, slot)
	idx.slots[k] = slot
}

func (idx *Index) Lookup(k Key) (int32, bool) {
	slot, ok := idx.slots[k]
	return slot, ok
}

func (idx *Index) Remove(k Key) {
	util.DPrintf(5, "index: remove %v\n", k)
	delete(idx.slots, k)
}

func (idx *Index) Len() uint64 {
	return uint64(len(idx.slots))
}

// Apply calls f for every entry; f must not modify the index.
func (idx *Index) Apply(f func(k Key, slot int32)) {
	for k, s := range idx.slots {
		f(k, s)
	}
}
