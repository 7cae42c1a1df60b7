// Package main is a throughput benchmark for command dispatch.
//
// Workers dispatch ChangeEmail commands against a pool of user aggregates.
// Commands that target the same user race and are retried on conflict.
//
// Configure via environment variables:
//
//	N=50000          Total number of commands
//	U=100            Number of unique users (aggregate keys)
//	W=8              Number of concurrent workers
//	B=1000           Batch size for progress reporting
//	SNAPSHOT=true    Snapshot aggregates every S events
//	S=50             Snapshot interval
//	CACHE=lru        Snapshot backend: "lru" or "kv"
//	QUEUE=0          Bus queue size per subscriber (0 = synchronous delivery)
//	METRICS=         Serve Prometheus metrics on this address, e.g. :2121
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	promadapter "github.com/codewandler/axon-go/adapters/prometheus"
	"github.com/codewandler/axon-go/core/app"
	"github.com/codewandler/axon-go/core/bus"
	"github.com/codewandler/axon-go/core/cache"
	"github.com/codewandler/axon-go/core/cqrs"
	"github.com/codewandler/axon-go/core/es"
	"github.com/codewandler/axon-go/ports/kv"
)

// === Config ===

var (
	totalOps      = getEnvInt("N", 50_000)
	numUsers      = getEnvInt("U", 100)
	numWorkers    = getEnvInt("W", 8)
	batchSize     = getEnvInt("B", 1_000)
	useSnapshot   = getEnvBool("SNAPSHOT", true)
	snapshotEvery = getEnvInt("S", 50)
	cacheType     = getEnv("CACHE", "lru")
	queueSize     = getEnvInt("QUEUE", 0)
	metricsAddr   = getEnv("METRICS", "")
)

func getEnvBool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	return v == "1" || strings.ToLower(v) == "true"
}

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

// === Main ===

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(log)

	if err := run(ctx, log); err != nil {
		log.Error("loadtest failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	fmt.Println("=== Load Test Configuration ===")
	fmt.Printf("  Total commands:  %d\n", totalOps)
	fmt.Printf("  Unique users:    %d\n", numUsers)
	fmt.Printf("  Workers:         %d\n", numWorkers)
	fmt.Printf("  Snapshots:       %v (every %d, %s)\n", useSnapshot, snapshotEvery, cacheType)
	fmt.Printf("  Bus queue:       %d\n", queueSize)
	fmt.Println()

	config := app.Config{
		Context: ctx,
		Log:     log,
	}

	reg := prometheus.NewRegistry()
	config.Metrics = promadapter.NewAllMetrics(reg).App()
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer func() { _ = srv.Close() }()
		fmt.Printf("Metrics at http://%s/metrics\n\n", metricsAddr)
	}

	if useSnapshot {
		switch cacheType {
		case "kv":
			config.Snapshotter = es.NewKVSnapshotter(kv.NewMemStore())
		default:
			config.Snapshotter = es.NewInMemorySnapshotter(cache.NewLRU(cache.LRUOpts{Size: numUsers}))
		}
		config.SnapshotEvery = snapshotEvery
	}
	config.Bus.QueueSize = queueSize

	var delivered atomic.Int64
	a, err := app.New(config,
		app.Aggregate[User](UserAgg{}, ChangeEmail{}, ChangeName{}),
		app.Subscriber("counter", bus.HandleFunc(func(*bus.Msg) error {
			delivered.Add(1)
			return nil
		})),
	)
	if err != nil {
		return err
	}

	// === START ===

	var (
		wg        sync.WaitGroup
		ops       = make(chan int)
		done      atomic.Int64
		retries   atomic.Int64
		conflicts atomic.Int64
		failures  atomic.Int64
	)
	startAt := time.Now()
	lastTime := startAt

	for range max(numWorkers, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range ops {
				cmd := ChangeEmail{ID: fmt.Sprintf("user-%d", i%max(numUsers, 1)), Email: fmt.Sprintf("user@host-%d.com", i)}
				res, err := a.Dispatch(ctx, cmd)
				switch {
				case err == nil:
				case res != nil && res.Outcome == cqrs.Conflicted:
					conflicts.Add(1)
				default:
					failures.Add(1)
					log.Warn("dispatch failed", slog.Any("error", err))
				}
				if res != nil && res.Attempts > 1 {
					retries.Add(int64(res.Attempts - 1))
				}
				done.Add(1)
			}
		}()
	}

feed:
	for i := range totalOps {
		select {
		case ops <- i:
		case <-ctx.Done():
			break feed
		}
		if i > 0 && i%batchSize == 0 {
			mu := getMemUsage()
			n := time.Now()
			took := n.Sub(lastTime)
			fmt.Printf(" | %5d cmds | %6d ms | %6d cmds/s | (%d / %d) MiB mem (sys) |\n",
				batchSize, took.Milliseconds(), int(float64(batchSize)/took.Seconds()), mu.Alloc/1024/1024, mu.Sys/1024/1024)
			lastTime = n
		}
	}
	close(ops)
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// === stats ===

	took := time.Since(startAt)
	runtime.GC()
	mu := getMemUsage()

	fmt.Println()
	fmt.Println("==========================================")
	fmt.Printf("total runtime: %.3f seconds\n", took.Seconds())
	fmt.Printf("     commands: %d\n", done.Load())
	fmt.Printf("    delivered: %d events\n", delivered.Load())
	fmt.Printf("      retries: %d\n", retries.Load())
	fmt.Printf("    conflicts: %d\n", conflicts.Load())
	fmt.Printf("     failures: %d\n", failures.Load())
	fmt.Printf(" avg. cmds/s: %d\n", int(float64(done.Load())/took.Seconds()))
	fmt.Printf("       num gc: %d\n", mu.NumGC)
	return nil
}

// === stats helpers ===

type MemUsage struct {
	Alloc      uint64 // bytes allocated and not yet freed (heap)
	TotalAlloc uint64 // cumulative bytes allocated
	Sys        uint64 // total bytes obtained from OS
	NumGC      uint32 // gc cycles
}

func getMemUsage() MemUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemUsage{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

// === Domain ===

type (
	User struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	NameChanged struct {
		NewName string `json:"new_name"`
	}
	EmailChanged struct {
		NewEmail string `json:"new_email"`
	}

	ChangeName struct {
		ID   string
		Name string
	}
	ChangeEmail struct {
		ID    string
		Email string
	}
)

func (NameChanged) EventType() string  { return "user.name_changed" }
func (EmailChanged) EventType() string { return "user.email_changed" }

func (c ChangeName) AggregateID() string  { return c.ID }
func (c ChangeName) CommandType() string  { return "user.change_name" }
func (c ChangeEmail) AggregateID() string { return c.ID }
func (c ChangeEmail) CommandType() string { return "user.change_email" }

type UserAgg struct{}

func (UserAgg) Type() string  { return "user" }
func (UserAgg) Initial() User { return User{} }
func (UserAgg) Events() []es.EventDef {
	return []es.EventDef{es.Event[NameChanged](), es.Event[EmailChanged]()}
}

func (UserAgg) Apply(u User, event any) (User, error) {
	switch e := event.(type) {
	case NameChanged:
		u.Name = e.NewName
	case EmailChanged:
		u.Email = e.NewEmail
	default:
		return u, es.UnknownEvent(event)
	}
	return u, nil
}

func (UserAgg) Decide(u User, cmd es.Command) ([]any, error) {
	switch c := cmd.(type) {
	case ChangeName:
		if c.Name == "" {
			return nil, es.Reject("name is empty")
		}
		return []any{NameChanged{NewName: c.Name}}, nil
	case ChangeEmail:
		if c.Email == "" {
			return nil, es.Reject("email is empty")
		}
		return []any{EmailChanged{NewEmail: c.Email}}, nil
	}
	return nil, es.UnknownCommand(cmd)
}

var _ es.Aggregate[User] = UserAgg{}
