package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	persistlog "voxstruct.ai/internal/persistence/log"
	"voxstruct.ai/internal/persistence/snapshot"
	"voxstruct.ai/internal/protocol"
	"voxstruct.ai/internal/transport/ws"
	"voxstruct.ai/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		structID   = flag.String("id", "default", "structure id")
		seed       = flag.Int64("seed", 0, "worldgen seed override (fresh structures only, 0 keeps tuning)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite edit index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	structureDir := filepath.Join(*dataDir, "structures", *structID)
	_ = os.MkdirAll(structureDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Worldgen.Seed = *seed
	}

	idx, err := openRuntimeIndex(structureDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		registerIndexMetrics(idx)
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(structureDir, idx, logger)
	}
	st, err := openStructure(*structID, structureDir, snapshotToLoad, tune, logger)
	if err != nil {
		logger.Fatalf("structure: %v", err)
	}

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.Fatalf("protocol schemas: %v", err)
	}

	editLog := persistlog.NewEditLogger(structureDir)
	defer editLog.Close()
	st.AddEditLogger(editLog)
	if idx != nil {
		st.AddEditLogger(idx)
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	st.SetSnapshotSink(snapCh)
	writeSnap := func(snap snapshot.SnapshotV1) {
		path := snapshot.Path(structureDir, snap.Header.Seq)
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Printf("snapshot write: %v", err)
			return
		}
		if idx != nil {
			idx.RecordSnapshot(path, snap)
		}
	}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				writeSnap(snap)
			}
		}
	}()

	// The structure outlives ctx so the final snapshot below can still reach it; it
	// is stopped explicitly once that snapshot is written.
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := st.Run(context.Background()); err != nil {
			logger.Printf("structure stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	enableAdminHTTP := envBool("VS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("VS_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		a := &admin{st: st, idx: idx, write: writeSnap}
		mux.HandleFunc("/admin/v1/state", a.state)
		mux.HandleFunc("/admin/v1/snapshot", a.snapshot)
		mux.HandleFunc("/admin/v1/edits", a.edits)
	} else {
		logger.Printf("admin endpoints disabled (VS_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (VS_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(st, validator, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (structure=%s)", *addr, st.ID())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	<-writerDone
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if snap, err := st.Snapshot(ctx2); err != nil {
		logger.Printf("final snapshot: %v", err)
	} else {
		writeSnap(snap)
		logger.Printf("final snapshot seq=%d", snap.Header.Seq)
	}

	// Edit loggers close on return; nothing may still be applying edits by then.
	st.Stop()
	<-runDone
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
