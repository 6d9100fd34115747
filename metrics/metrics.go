// Package metrics exports buffer cache statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mit-pdos/go-lmfs/bcache"
)

const namespace = "lmfs"

// Source is anything that can snapshot pool statistics, such as a
// bcache.Shared.
type Source interface {
	Stats() bcache.Stats
}

// occupancy figures come first in Stats.Counters; the rest are event
// counts.
const nGauges = 7

var help = map[string]string{
	"capacity":       "Number of buffers in the pool.",
	"block_size":     "Block size in bytes.",
	"resident":       "Buffers holding a block.",
	"in_use":         "Blocks with at least one holder.",
	"free":           "Buffers holding nothing.",
	"evictable":      "Unreferenced resident blocks.",
	"dirty":          "Blocks not yet written back.",
	"hits":           "Lookups that found the block resident.",
	"misses":         "Lookups that allocated a buffer.",
	"prefetches":     "Buffers allocated without reading.",
	"evictions":      "Blocks evicted to reuse their buffer.",
	"out_of_buffers": "Lookups that failed with every buffer in use.",
	"reads":          "Blocks read from devices.",
	"writes":         "Blocks written to devices.",
	"read_errors":    "Blocks that failed to read.",
	"write_errors":   "Blocks that failed to write.",
	"fallbacks":      "Multi-block runs retried one block at a time.",
	"discarded":      "Dirty blocks dropped without write-back.",
	"flushes":        "Device flushes that found dirty blocks.",
}

type Collector struct {
	src   Source
	descs []*prometheus.Desc
}

func NewCollector(src Source) *Collector {
	names, _ := bcache.Stats{}.Counters()
	c := &Collector{src: src}
	for i, name := range names {
		full := prometheus.BuildFQName(namespace, "bcache", name)
		if i >= nGauges {
			full += "_total"
		}
		c.descs = append(c.descs, prometheus.NewDesc(full, help[name], nil, nil))
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	_, vals := c.src.Stats().Counters()
	for i, v := range vals {
		vt := prometheus.GaugeValue
		if i >= nGauges {
			vt = prometheus.CounterValue
		}
		ch <- prometheus.MustNewConstMetric(c.descs[i], vt, float64(v))
	}
}
