// Command gosession-loadtest drives many sessions against an in-process
// backend whose tokens expire on a schedule, and reports request latency and
// how many refresh calls the backend saw per refresh episode.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/fakebackend"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
)

type clock struct {
	offset atomic.Int64
}

func (c *clock) Now() time.Time { return time.Now().Add(time.Duration(c.offset.Load())) }

func (c *clock) Advance(d time.Duration) { c.offset.Add(int64(d)) }

func main() {
	var (
		sessions    = flag.Int("sessions", 16, "number of independent sessions")
		concurrency = flag.Int("concurrency", 32, "concurrent workers per session")
		ops         = flag.Int("ops", 20000, "requests per session")
		expireEvery = flag.Int("expire-every", 2000, "expire every token after this many requests per session")
		refreshLag  = flag.Duration("refresh-delay", 5*time.Millisecond, "artificial latency of the refresh endpoint")
		redisAddr   = flag.String("redis-addr", "", "persist tokens in redis at this address; \"mini\" starts miniredis")
		verbose     = flag.Bool("v", false, "log at debug level")
		showMetrics = flag.Bool("metrics", false, "print the first session's metrics in Prometheus format")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *expireEvery <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, ops and expire-every must be > 0")
		os.Exit(2)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	if *verbose {
		log.SetOutput(os.Stderr)
		log.SetLevel(logrus.DebugLevel)
	}

	clk := &clock{}
	accounts := make([]fakebackend.Account, *sessions)
	for i := range accounts {
		id := "user-" + strconv.Itoa(i)
		accounts[i] = fakebackend.Account{Identifier: id, Secret: "pw", Email: id + "@example.com"}
	}
	backend, err := fakebackend.New(fakebackend.Options{
		Secret:    []byte("loadtest-secret-loadtest-secret!"),
		AccessTTL: time.Minute,
		Accounts:  accounts,
		Now:       clk.Now,
		Logger:    log,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "backend: %v\n", err)
		os.Exit(1)
	}
	backend.SetRefreshDelay(*refreshLag)
	srv := httptest.NewServer(backend.Handler())
	defer srv.Close()

	rdb, cleanup, err := openRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx := context.Background()
	clients := make([]*goSession.Client, *sessions)
	for i := range clients {
		cfg := goSession.DefaultConfig()
		cfg.BaseURL = srv.URL
		cfg.Metrics.EnableLatencyHistograms = true
		if rdb != nil {
			cfg.Storage.Backend = goSession.StorageRedis
			cfg.Storage.Key = accounts[i].Identifier
		}
		c, err := goSession.New().WithConfig(cfg).WithClock(clk.Now).WithLogger(log).WithRedis(rdb).Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "build session %d: %v\n", i, err)
			os.Exit(1)
		}
		defer c.Close()
		if _, err := c.Login(ctx, accounts[i].Identifier, "pw"); err != nil {
			fmt.Fprintf(os.Stderr, "login session %d: %v\n", i, err)
			os.Exit(1)
		}
		clients[i] = c
	}
	fmt.Printf("logged in %d sessions\n", len(clients))

	stats := run(ctx, clients, clk, *ops, *concurrency, *expireEvery)

	var episodes, waiters uint64
	for _, c := range clients {
		snap := c.MetricsSnapshot()
		episodes += snap.Counters[goSession.MetricRefreshEpisode]
		waiters += snap.Counters[goSession.MetricRefreshWaiterQueued]
	}

	fmt.Println("---- results ----")
	printStats("requests", stats)
	fmt.Printf("refresh: backend_calls=%d episodes=%d queued_waiters=%d\n", backend.RefreshCalls(), episodes, waiters)
	if *showMetrics {
		fmt.Print(prometheus.NewExporter(clients[0]).Render())
	}
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	switch addr {
	case "":
		return nil, func() {}, nil
	case "mini":
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() { _ = client.Close(); mr.Close() }, nil
	default:
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}
}

func run(ctx context.Context, clients []*goSession.Client, clk *clock, ops, concurrency, expireEvery int) phaseStats {
	var (
		mu        sync.Mutex
		failures  atomic.Int64
		latencies = make([]time.Duration, 0, ops*len(clients))
		issued    atomic.Int64
	)

	start := time.Now()
	var g errgroup.Group
	for _, c := range clients {
		c := c
		var cursor atomic.Int64
		for w := 0; w < concurrency; w++ {
			g.Go(func() error {
				local := make([]time.Duration, 0, ops/concurrency+1)
				for {
					i := int(cursor.Add(1)) - 1
					if i >= ops {
						break
					}
					if n := issued.Add(1); n%int64(expireEvery*len(clients)) == 0 {
						clk.Advance(2 * time.Minute)
					}
					t0 := time.Now()
					err := c.GetJSON(ctx, "/api/me", nil)
					local = append(local, time.Since(t0))
					if err != nil {
						failures.Add(1)
					}
				}
				mu.Lock()
				latencies = append(latencies, local...)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
