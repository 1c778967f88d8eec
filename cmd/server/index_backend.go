package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"voxstruct.ai/internal/persistence/indexdb"
	persistlog "voxstruct.ai/internal/persistence/log"
	"voxstruct.ai/internal/persistence/snapshot"
	"voxstruct.ai/internal/structure"
	"voxstruct.ai/internal/tuning"
)

type runtimeIndex interface {
	structure.EditLogger
	Close() error
	UpsertTuning(tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	EditsAt(ctx context.Context, pos [3]int, limit int) ([]persistlog.EditEntry, error)
	ChunkEditCounts(ctx context.Context) (map[int]int, error)
	LatestSnapshot(ctx context.Context) (string, uint64, bool, error)
	Stats() indexdb.Stats
}

func openRuntimeIndex(structureDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(structureDir, "index", "structure.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported VS_INDEX_BACKEND: %s", backend)
	}
}

func registerIndexMetrics(idx runtimeIndex) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "voxstruct_index_queue_depth",
		Help: "Pending index writes.",
	}, func() float64 { return float64(idx.Stats().QueueDepth) })
	promauto.NewCounterFunc(prometheus.CounterOpts{
		Name: "voxstruct_index_dropped_edits",
		Help: "Edits dropped because the index queue was full.",
	}, func() float64 { return float64(idx.Stats().DropEditTotal) })
}
