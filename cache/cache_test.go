package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mit-pdos/go-lmfs/common"
)

func TestIndex(t *testing.T) {
	idx := MkIndex(10)
	for i := uint64(0); i < 10; i++ {
		idx.Insert(MkKey(0, common.Bnum(i)), int32(i))
	}
	assert.Equal(t, uint64(10), idx.Len())

	s, ok := idx.Lookup(MkKey(0, 3))
	assert.True(t, ok)
	assert.Equal(t, int32(3), s)

	_, ok = idx.Lookup(MkKey(1, 3))
	assert.False(t, ok, "same block number on another device")

	idx.Remove(MkKey(0, 3))
	_, ok = idx.Lookup(MkKey(0, 3))
	assert.False(t, ok)
	assert.Equal(t, uint64(9), idx.Len())
}

func TestIndexDuplicatePanics(t *testing.T) {
	idx := MkIndex(4)
	idx.Insert(MkKey(2, 7), 0)
	defer func() {
		r := recover()
		if assert.NotNil(t, r) {
			e, ok := r.(*DuplicateError)
			if assert.True(t, ok) {
				assert.Equal(t, MkKey(2, 7), e.Key)
				assert.Equal(t, int32(0), e.Existing)
				assert.Equal(t, int32(1), e.New)
			}
		}
	}()
	idx.Insert(MkKey(2, 7), 1)
}

func TestIndexGrowKeepsSlots(t *testing.T) {
	idx := MkIndex(1)
	for i := 0; i < 1000; i++ {
		idx.Insert(MkKey(common.Dev(i%3), common.Bnum(i)), int32(i))
	}
	for i := 0; i < 1000; i++ {
		s, ok := idx.Lookup(MkKey(common.Dev(i%3), common.Bnum(i)))
		assert.True(t, ok)
		assert.Equal(t, int32(i), s)
	}
}

func order(l *LRU) []int32 {
	var ids []int32
	l.Walk(func(id int32) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

func TestLRU(t *testing.T) {
	l := MkLRU(10)
	for i := int32(0); i < 10; i++ {
		l.PushMRU(i)
	}
	assert.Equal(t, uint64(10), l.Len())

	l.Remove(0)
	assert.Equal(t, uint64(9), l.Len(), "lru too long")
	l.PushMRU(0)
	id, ok := l.PeekLRU()
	assert.True(t, ok)
	assert.Equal(t, int32(1), id, "lru wrong head")

	id, ok = l.PopLRU()
	assert.True(t, ok)
	assert.Equal(t, int32(1), id)
	id, _ = l.PeekLRU()
	assert.Equal(t, int32(2), id, "lru wrong head 2")
	assert.Equal(t, uint64(9), l.Len())
}

func TestLRURemoveKeepsOrder(t *testing.T) {
	l := MkLRU(5)
	for i := int32(0); i < 5; i++ {
		l.PushMRU(i)
	}
	l.Remove(2)
	assert.Equal(t, []int32{0, 1, 3, 4}, order(l))
	l.Remove(0)
	l.Remove(4)
	assert.Equal(t, []int32{1, 3}, order(l))
	assert.False(t, l.Contains(4))
	assert.True(t, l.Contains(3))
}

func TestLRUPushFront(t *testing.T) {
	l := MkLRU(3)
	l.PushMRU(0)
	l.PushMRU(1)
	l.PushLRU(2)
	assert.Equal(t, []int32{2, 0, 1}, order(l))

	for _, want := range []int32{2, 0, 1} {
		id, ok := l.PopLRU()
		assert.True(t, ok)
		assert.Equal(t, want, id)
	}
	_, ok := l.PopLRU()
	assert.False(t, ok)
	assert.Equal(t, uint64(0), l.Len())
}
