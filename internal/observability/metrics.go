package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/platform/envutil"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

// Metrics is the process-wide set of counters. A nil *Metrics is valid and
// records nothing, so callers never check Enabled themselves.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	runsCreated  *CounterVec
	runsFinished *CounterVec
	runDuration  *HistogramVec
	runsActive   *Gauge
	queueDepth   *Gauge

	sseClients *Gauge

	pgStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool { return envutil.Bool("METRICS_ENABLED", false) }

func Current() *Metrics { return instance }

func scrapeInterval() time.Duration {
	return time.Duration(envutil.IntRange("METRICS_SCRAPE_INTERVAL_SECONDS", 15, 1, 3600)) * time.Second
}

// Init returns nil unless METRICS_ENABLED is set.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// New builds an unregistered Metrics. Tests use it directly.
func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("im_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"im_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight:  NewGauge("im_api_inflight_requests", "In-flight API requests."),
		runsCreated:  NewCounterVec("im_runs_created_total", "Runs created by kind.", []string{"kind"}),
		runsFinished: NewCounterVec("im_runs_finished_total", "Runs reaching a terminal status by kind/status.", []string{"kind", "status"}),
		runDuration: NewHistogramVec(
			"im_run_duration_seconds",
			"Run wall time from creation to terminal status.",
			[]string{"kind", "status"},
			[]float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		),
		runsActive: NewGauge("im_runs_active", "Runs created and not yet terminal on this instance."),
		queueDepth: NewGauge("im_run_queue_depth", "Items waiting in the run queue."),
		sseClients: NewGauge("im_sse_clients", "Connected run event streams."),
		pgStats:    NewGaugeVec("im_postgres_pool", "Postgres connection pool stats.", []string{"stat"}),
		redisUp:    NewGauge("im_redis_up", "Redis reachability (1 up, 0 down)."),
		redisPing:  NewGauge("im_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.runsCreated, m.runsFinished, m.runDuration, m.runsActive, m.queueDepth,
		m.sseClients,
		m.pgStats, m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

// RunCreated and RunTerminal make *Metrics a run registry observer.
func (m *Metrics) RunCreated(kind string) {
	if m == nil {
		return
	}
	m.runsCreated.Inc(kind)
	m.runsActive.Inc()
}

func (m *Metrics) RunTerminal(kind, status string, seconds float64) {
	if m == nil {
		return
	}
	m.runsFinished.Inc(kind, status)
	m.runDuration.Observe(seconds, kind, status)
	m.runsActive.Dec()
}

// SetQueueDepth makes *Metrics a worker depth gauge.
func (m *Metrics) SetQueueDepth(n int64) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) SSEClientConnected() {
	if m != nil {
		m.sseClients.Inc()
	}
}

func (m *Metrics) SSEClientDisconnected() {
	if m != nil {
		m.sseClients.Dec()
	}
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: postgres pool unavailable", "error", err)
		}
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_seconds")
			}
		}
	}()
}

// StartRedisCollector pings the shared client; it does not own it.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StatusLabel renders an HTTP status for metric labels.
func StatusLabel(code int) string { return strconv.Itoa(code) }
