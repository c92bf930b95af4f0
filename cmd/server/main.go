package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"factoryverse.ai/internal/persistence/indexdb"
	persistlog "factoryverse.ai/internal/persistence/log"
	"factoryverse.ai/internal/persistence/objstore"
	"factoryverse.ai/internal/sim/gridworld"
	"factoryverse.ai/internal/sim/runtime"
	"factoryverse.ai/internal/sim/tuning"
	"factoryverse.ai/internal/transport/ws"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		catalogPath = flag.String("catalog", "", "path to world.yaml (default: <configs>/world.yaml)")
		width       = flag.Int("width", 128, "world width in tiles")
		height      = flag.Int("height", 128, "world height in tiles")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite read-model index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

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
		tune = tuning.Default()
	}

	w := gridworld.New(gridworld.Config{
		Width:     *width,
		Height:    *height,
		WalkSpeed: tune.Nav.WalkSpeed,
	})

	cp := strings.TrimSpace(*catalogPath)
	if cp == "" {
		cp = filepath.Join(*configDir, "world.yaml")
	}
	if cat, err := gridworld.LoadCatalog(cp); err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load catalog: %v", err)
		}
		logger.Printf("catalog not found (%s); world starts empty", cp)
	} else {
		w.Install(cat)
		logger.Printf("catalog: %d recipes, %d resources, %d entities",
			len(cat.Recipes), len(cat.Resources), len(cat.Entities))
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	eventLog := persistlog.NewEventJournal(*dataDir)
	callLog := persistlog.NewCallJournal(*dataDir)
	defer eventLog.Close()
	defer callLog.Close()

	// Sealed journal segments can be mirrored to an S3-compatible bucket.
	if up := buildUploader(*dataDir, logger); up != nil {
		defer up.Close()
		eventLog.OnSeal(up.Enqueue)
		callLog.OnSeal(up.Enqueue)
		logger.Printf("objstore mirror enabled")
	}

	events := []runtime.EventRecorder{eventLog}
	calls := []runtime.CallRecorder{callLog}

	// Optional read-model index; never authoritative, derived from journals.
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
		events = append(events, idx)
		calls = append(calls, idx)
	}

	rt := runtime.New(runtime.Options{
		Tuning: tune,
		World:  w,
		Events: events,
		Calls:  calls,
	})

	ctx, cancel := signalContext()
	defer cancel()

	go rt.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"tick":         rt.CurrentTick(),
			"tick_rate_hz": tune.TickRateHz,
		})
	})
	mux.HandleFunc("/v1/ws", ws.NewServer(rt, logger).Handler())

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

	logger.Printf("listening on %s (tick %d Hz)", *addr, tune.TickRateHz)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// buildUploader returns nil unless the FV_OBJSTORE_* environment is set.
func buildUploader(dataDir string, logger *log.Logger) *objstore.Uploader {
	endpoint := os.Getenv("FV_OBJSTORE_ENDPOINT")
	if strings.TrimSpace(endpoint) == "" {
		return nil
	}
	client, err := objstore.NewClient(
		endpoint,
		os.Getenv("FV_OBJSTORE_BUCKET"),
		os.Getenv("FV_OBJSTORE_ACCESS_KEY_ID"),
		os.Getenv("FV_OBJSTORE_SECRET_ACCESS_KEY"),
	)
	if err != nil {
		logger.Fatalf("objstore: %v", err)
	}
	return objstore.NewUploader(client, dataDir, os.Getenv("FV_OBJSTORE_PREFIX"), 2, 1024, logger)
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
