package grid

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"voxstruct.ai/internal/voxel/mesh"
)

const (
	reasonLabel = "reason"

	reasonLoad = "load"
	reasonEdit = "edit"
)

var (
	chunkRemesh = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxstruct_chunk_remesh",
		Help: "The number of chunk recompute and mesh passes.",
	}, []string{
		reasonLabel,
	})

	chunkRemeshEmpty = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxstruct_chunk_remesh_empty",
		Help: "Remesh passes that found the chunk empty.",
	}, []string{
		reasonLabel,
	})

	chunkRemeshLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voxstruct_chunk_remesh_latency",
		Help:    "The time to recompute and mesh one chunk.",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
	}, []string{
		reasonLabel,
	})

	chunkTriangles = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voxstruct_chunk_triangles",
		Help:    "Triangles emitted per non-empty chunk mesh.",
		Buckets: prometheus.ExponentialBuckets(12, 4, 8),
	})
)

func instrumentRemesh(reason string, start time.Time, m *mesh.Mesh) {
	labels := prometheus.Labels{reasonLabel: reason}
	chunkRemesh.With(labels).Inc()
	chunkRemeshLatency.With(labels).Observe(time.Since(start).Seconds())
	if m == nil {
		chunkRemeshEmpty.With(labels).Inc()
		return
	}
	chunkTriangles.Observe(float64(m.Triangles()))
}
