package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/queueforge/ciqueue/controller/middleware"
	"github.com/queueforge/ciqueue/internal/ciqueuestore"
	"github.com/queueforge/ciqueue/internal/dashboard"
	"github.com/queueforge/ciqueue/internal/demotask"
	"github.com/queueforge/ciqueue/internal/environment"
	"github.com/queueforge/ciqueue/internal/nodepool"
	"github.com/queueforge/ciqueue/internal/observability"
	"github.com/queueforge/ciqueue/internal/queue"
	"github.com/queueforge/ciqueue/internal/queueclock"
	"github.com/queueforge/ciqueue/internal/resource"
)

const queueFile = "queue.txt"

// snapshotAdapter bridges queue.Queue's Snapshot (queue.Counts) to
// dashboard.SnapshotSource (dashboard.Snapshot): two structurally
// identical but independently-owned types, kept separate so the
// dashboard package never imports the core queue package.
type snapshotAdapter struct{ q *queue.Queue }

func (a snapshotAdapter) Snapshot() dashboard.Snapshot {
	c := a.q.Snapshot()
	return dashboard.Snapshot{
		Waiting:         c.Waiting,
		Blocked:         c.Blocked,
		Buildable:       c.Buildable,
		ParkedExecutors: c.ParkedExecutors,
	}
}

func envDuration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		log.Printf("[CONFIG] invalid duration for %s=%q, using default %v", key, val, def)
		return def
	}
	return d
}

func main() {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis (required for the environment handle): %v", err)
		}
		cancel()
	}
	log.Printf("✅ Connected to Redis at %s for the quiescing flag", redisAddr)

	registry := demotask.NewRegistry()
	pool := nodepool.NewPool()
	resources := resource.NewController()

	env := environment.New(redisClient, registry, pool.NonControllerCount, envDuration("QUIESCE_POLL_INTERVAL", 5*time.Second))

	defaultQuietPeriod := envDuration("DEFAULT_QUIET_PERIOD", 5*time.Second)
	clock := queueclock.System
	q := queue.New(clock, resources, env, registry, defaultQuietPeriod)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env.Start(ctx)

	var mirror *ciqueuestore.PostgresMirror
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		m, err := ciqueuestore.NewPostgresMirror(ctx, dsn)
		if err != nil {
			log.Printf("⚠️ Postgres mirror unavailable, falling back to flat-file only: %v", err)
		} else {
			mirror = m
			defer mirror.Close()
			log.Println("✅ Postgres durable mirror enabled")
		}
	}

	if mirror != nil {
		q.LoadOrFallback(ctx, queueFile, mirror)
	} else {
		q.Load(queueFile)
	}

	livenessThreshold := envDuration("NODE_LIVENESS_THRESHOLD", 30*time.Second)
	liveness := nodepool.NewLivenessMonitor(pool, envDuration("NODE_LIVENESS_INTERVAL", 10*time.Second), livenessThreshold, q.ScheduleMaintenance)
	liveness.Start(ctx)

	tickInterval := envDuration("MAINTENANCE_TICK_INTERVAL", 5*time.Second)
	ticker := queue.NewTicker(q, tickInterval)
	ticker.Start()

	hub := dashboard.NewHub(snapshotAdapter{q: q})
	go hub.Run(ctx)

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", hub)

	mux.HandleFunc("/nodes", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handleRegisterNode(w, r, pool)
		case http.MethodGet:
			handleListNodes(w, r, pool)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/nodes/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		handleHeartbeat(w, r, pool, liveness)
	})

	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handleSubmitTask(w, r, registry, q, hub, mirror, ctx)
		case http.MethodGet:
			handleListTasks(w, r, q, resources)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/tasks/cancel", func(w http.ResponseWriter, r *http.Request) {
		handleCancelTask(w, r, registry, q, hub, mirror, ctx)
	})

	mux.HandleFunc("/executors/pop", func(w http.ResponseWriter, r *http.Request) {
		handlePop(w, r, q, pool, mirror)
	})

	mux.HandleFunc("/admin/quiesce", func(w http.ResponseWriter, r *http.Request) {
		handleQuiesce(w, r, env)
	})

	handler := middleware.CORSMiddleware(mux)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{Addr: addr, Handler: handler}

	go func() {
		log.Printf("ciqueued listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("⚠️ Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ server shutdown error: %v", err)
	}

	ticker.Stop()
	if err := q.Save(queueFile); err != nil {
		log.Printf("⚠️ failed to persist queue on shutdown: %v", err)
	} else {
		log.Println("✅ queue state persisted to " + queueFile)
	}
}

func handleRegisterNode(w http.ResponseWriter, r *http.Request, pool *nodepool.Pool) {
	var req struct {
		Name         string   `json:"name"`
		Exclusive    bool     `json:"exclusive"`
		IsController bool     `json:"is_controller"`
		Labels       []string `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode := nodepool.ModeNormal
	if req.Exclusive {
		mode = nodepool.ModeExclusive
	}
	pool.Upsert(nodepool.NewNode(req.Name, mode, req.IsController, req.Labels...))
	w.WriteHeader(http.StatusCreated)
}

func handleListNodes(w http.ResponseWriter, _ *http.Request, pool *nodepool.Pool) {
	nodes := pool.All()
	out := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, map[string]any{
			"name":          n.Name,
			"mode":          n.Mode.String(),
			"offline":       n.IsOffline(),
			"is_controller": n.IsController,
		})
	}
	json.NewEncoder(w).Encode(out)
}

func handleHeartbeat(w http.ResponseWriter, r *http.Request, pool *nodepool.Pool, liveness *nodepool.LivenessMonitor) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	liveness.Heartbeat(req.Name, time.Now())
	pool.MarkOffline(req.Name, false)
	w.WriteHeader(http.StatusOK)
}

type submitTaskRequest struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Resources   []string `json:"resources"`
	DurationSec int64    `json:"estimated_duration_seconds"`
	QuietMillis int64    `json:"quiet_period_millis"`
}

func handleSubmitTask(w http.ResponseWriter, r *http.Request, registry *demotask.Registry, q *queue.Queue, hub *dashboard.Hub, mirror *ciqueuestore.PostgresMirror, ctx context.Context) {
	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	duration := time.Duration(req.DurationSec) * time.Second
	if req.DurationSec == 0 {
		duration = -1
	}

	t, ok := registry.Get(req.Name)
	if !ok {
		t = demotask.New(req.Name, req.Label, req.Resources, duration, time.Duration(req.QuietMillis)*time.Millisecond)
		registry.Define(t)
	}

	changed := q.AddDefault(t)
	if changed && mirror != nil {
		if err := mirror.Upsert(ctx, t.Name()); err != nil {
			log.Printf("⚠️ postgres mirror upsert failed for %q: %v", t.Name(), err)
		}
	}
	if changed {
		hub.NudgeBroadcast()
	}

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, `{"queued":%v}`, changed)
}

func handleListTasks(w http.ResponseWriter, _ *http.Request, q *queue.Queue, resources *resource.Controller) {
	items := q.GetItems()
	now := time.Now()
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		var blockingActivity, taskReason string
		selfBlocked := false
		if it.Stage == queue.StageBlocked {
			for _, res := range it.Task.ResourceList() {
				if holder := resources.BlockingActivity(res); holder != "" {
					blockingActivity = holder
					break
				}
			}
			if blockingActivity == "" {
				selfBlocked, taskReason = it.Task.IsBuildBlocked()
			}
		}
		out = append(out, map[string]any{
			"name":  it.Task.Name(),
			"stage": it.Stage.String(),
			"why":   it.Why(now, blockingActivity, selfBlocked, taskReason),
		})
	}
	json.NewEncoder(w).Encode(out)
}

func handleCancelTask(w http.ResponseWriter, r *http.Request, registry *demotask.Registry, q *queue.Queue, hub *dashboard.Hub, mirror *ciqueuestore.PostgresMirror, ctx context.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	t, ok := registry.ResolveTask(req.Name)
	if !ok {
		http.Error(w, "unknown task", http.StatusNotFound)
		return
	}
	removed := q.Cancel(t)
	if removed {
		if mirror != nil {
			if err := mirror.Remove(ctx, req.Name); err != nil {
				log.Printf("⚠️ postgres mirror remove failed for %q: %v", req.Name, err)
			}
		}
		hub.NudgeBroadcast()
	}
	fmt.Fprintf(w, `{"removed":%v}`, removed)
}

func handlePop(w http.ResponseWriter, r *http.Request, q *queue.Queue, pool *nodepool.Pool, mirror *ciqueuestore.PostgresMirror) {
	executor := r.URL.Query().Get("executor")
	nodeName := r.URL.Query().Get("node")
	if executor == "" || nodeName == "" {
		http.Error(w, "executor and node query params are required", http.StatusBadRequest)
		return
	}
	node := pool.Get(nodeName)
	if node == nil {
		http.Error(w, "unknown node, register it first", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 55*time.Second)
	defer cancel()

	task, err := q.Pop(ctx, executor, node)
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyParked) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	if mirror != nil {
		if err := mirror.Remove(ctx, task.Name()); err != nil {
			log.Printf("⚠️ postgres mirror remove failed for %q: %v", task.Name(), err)
		}
	}
	json.NewEncoder(w).Encode(map[string]string{"task": task.Name()})
}

func handleQuiesce(w http.ResponseWriter, r *http.Request, env *environment.Handle) {
	var req struct {
		Quiescing bool `json:"quiescing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := env.SetQuietingDown(r.Context(), req.Quiescing); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
