package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-lmfs/bcache"
)

type fixed bcache.Stats

func (f fixed) Stats() bcache.Stats {
	return bcache.Stats(f)
}

func TestCollector(t *testing.T) {
	c := NewCollector(fixed{Capacity: 8, Hits: 3, Misses: 2, Dirty: 1})
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	names, _ := bcache.Stats{}.Counters()
	assert.Equal(t, len(names), testutil.CollectAndCount(c))

	expected := `
# HELP lmfs_bcache_dirty Blocks not yet written back.
# TYPE lmfs_bcache_dirty gauge
lmfs_bcache_dirty 1
# HELP lmfs_bcache_hits_total Lookups that found the block resident.
# TYPE lmfs_bcache_hits_total counter
lmfs_bcache_hits_total 3
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"lmfs_bcache_dirty", "lmfs_bcache_hits_total")
	assert.NoError(t, err)
}

func TestCollectorLivePool(t *testing.T) {
	p, err := bcache.New(nil, bcache.Config{BlockSize: 1024, Buffers: 4})
	require.NoError(t, err)
	b, err := p.GetBlock(0, 1, bcache.NO_READ)
	require.NoError(t, err)
	p.PutBlock(b)

	sh := bcache.MkShared(p)
	c := NewCollector(sh)
	expected := `
# HELP lmfs_bcache_misses_total Lookups that allocated a buffer.
# TYPE lmfs_bcache_misses_total counter
lmfs_bcache_misses_total 1
# HELP lmfs_bcache_resident Buffers holding a block.
# TYPE lmfs_bcache_resident gauge
lmfs_bcache_resident 1
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"lmfs_bcache_misses_total", "lmfs_bcache_resident"))
}
