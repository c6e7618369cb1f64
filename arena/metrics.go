package arena

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "ccol"

type arenaCollector struct {
	arena *Arena

	regionBytes    *prometheus.Desc
	availableBytes *prometheus.Desc
	freeBlocks     *prometheus.Desc
	usedBlocks     *prometheus.Desc
}

// NewCollector creates a Prometheus collector reporting the occupancy of arena. Every metric
// carries an "arena" label holding name.
func NewCollector(arena *Arena, name string) prometheus.Collector {
	labels := prometheus.Labels{"arena": name}

	return &arenaCollector{
		arena: arena,
		regionBytes: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "arena", "region_bytes"),
			"Size of the arena's region in bytes.",
			nil, labels,
		),
		availableBytes: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "arena", "available_bytes"),
			"Bytes held in free blocks.",
			nil, labels,
		),
		freeBlocks: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "arena", "free_blocks"),
			"Number of free blocks per block size.",
			[]string{"block_size"}, labels,
		),
		usedBlocks: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "arena", "used_blocks"),
			"Number of leased blocks per block size.",
			[]string{"block_size"}, labels,
		),
	}
}

func (c *arenaCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.regionBytes
	ch <- c.availableBytes
	ch <- c.freeBlocks
	ch <- c.usedBlocks
}

func (c *arenaCollector) Collect(ch chan<- prometheus.Metric) {
	occupancy := c.arena.Occupancy()

	ch <- prometheus.MustNewConstMetric(c.regionBytes, prometheus.GaugeValue, float64(occupancy.RegionBytes))
	ch <- prometheus.MustNewConstMetric(c.availableBytes, prometheus.GaugeValue, float64(occupancy.SpaceAvailable))
	for _, class := range occupancy.Classes {
		blockSize := strconv.Itoa(class.BlockSize)
		ch <- prometheus.MustNewConstMetric(c.freeBlocks, prometheus.GaugeValue, float64(class.FreeBlocks), blockSize)
		ch <- prometheus.MustNewConstMetric(c.usedBlocks, prometheus.GaugeValue, float64(class.UsedBlocks), blockSize)
	}
}

var _ prometheus.Collector = new(arenaCollector)
