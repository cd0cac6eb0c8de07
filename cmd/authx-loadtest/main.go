// Command authx-loadtest drives an authx engine over a Redis account store and checks
// that concurrent registration and code consumption keep their single-winner guarantees.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authx"
	"github.com/MrEthical07/authx/internal/stores"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		accounts    = flag.Int("accounts", 200, "accounts to register for the verification phase")
		contenders  = flag.Int("contenders", 32, "concurrent attempts per email or code")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "{authx-loadtest}", "account key prefix")
	)
	flag.Parse()

	if *accounts <= 0 || *contenders <= 1 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "accounts and concurrency must be > 0, contenders must be > 1")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	codes := newCodeBox()
	engine, err := newEngine(stores.NewRedisAccountStore(client, *prefix), codes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	run := fmt.Sprintf("%d", time.Now().UnixNano())

	dupStats, dupViolations := runDuplicateRegisterPhase(ctx, engine, run, *contenders, *concurrency)

	fmt.Printf("registering %d accounts...\n", *accounts)
	startSeed := time.Now()
	emails, err := seedAccounts(ctx, engine, run, *accounts, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("registered in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats, verifyViolations := runDoubleVerifyPhase(ctx, engine, codes, emails, *contenders, *concurrency)

	fmt.Println("---- results ----")
	printStats("register-same-email", dupStats)
	printStats("verify-same-code", verifyStats)

	violations := dupViolations + verifyViolations
	fmt.Printf("invariant violations: %d\n", violations)
	if violations > 0 {
		os.Exit(1)
	}
}

func newEngine(store authx.AccountStore, codes *codeBox) (*authx.Engine, error) {
	cfg := authx.DefaultConfig()
	cfg.Token.PrivateKey = []byte("loadtest-signing-key-0123456789ab")
	// Cheap hashing keeps the phases bound by the store rather than Argon2.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.MaxConcurrent = 64
	cfg.Notifications.Async = false

	return authx.New().
		WithConfig(cfg).
		WithStore(store).
		WithNotifier(authx.NotifierFunc(codes.record)).
		WithLogger(zap.NewNop()).
		Build()
}

// codeBox captures verification codes keyed by email.
type codeBox struct {
	mu    sync.Mutex
	codes map[string]string
}

func newCodeBox() *codeBox {
	return &codeBox{codes: make(map[string]string)}
}

func (b *codeBox) record(_ context.Context, n authx.Notification) error {
	if n.Kind != authx.NotifyVerification {
		return nil
	}
	b.mu.Lock()
	b.codes[n.To] = n.Code
	b.mu.Unlock()
	return nil
}

func (b *codeBox) get(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codes[email]
}

// runDuplicateRegisterPhase races contenders registrations of one email. Exactly one may win.
func runDuplicateRegisterPhase(ctx context.Context, engine *authx.Engine, run string, contenders, concurrency int) (phaseStats, int) {
	email := "race-" + run + "@loadtest.local"
	var wins int64

	stats := runPhase(contenders, concurrency, func(i int) error {
		_, err := engine.Register(ctx, authx.RegisterRequest{
			Username: fmt.Sprintf("race-%s-%d", run, i),
			Email:    email,
			Password: "loadtest-password",
		})
		if err == nil {
			atomic.AddInt64(&wins, 1)
			return nil
		}
		if authx.KindOf(err) == authx.KindConflict {
			return nil
		}
		return err
	})

	if wins != 1 {
		fmt.Printf("VIOLATION: %d registrations succeeded for %s\n", wins, email)
		return stats, 1
	}
	return stats, 0
}

func seedAccounts(ctx context.Context, engine *authx.Engine, run string, n, concurrency int) ([]string, error) {
	emails := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		i := i
		emails[i] = fmt.Sprintf("user-%s-%d@loadtest.local", run, i)
		g.Go(func() error {
			_, err := engine.Register(gctx, authx.RegisterRequest{
				Username: fmt.Sprintf("user-%s-%d", run, i),
				Email:    emails[i],
				Password: "loadtest-password",
			})
			return err
		})
	}
	return emails, g.Wait()
}

// runDoubleVerifyPhase submits every verification code contenders times. Each code may
// verify exactly once.
func runDoubleVerifyPhase(ctx context.Context, engine *authx.Engine, codes *codeBox, emails []string, contenders, concurrency int) (phaseStats, int) {
	wins := make([]int64, len(emails))

	stats := runPhase(len(emails)*contenders, concurrency, func(i int) error {
		idx := i % len(emails)
		_, err := engine.VerifyEmail(ctx, authx.VerifyEmailRequest{Code: codes.get(emails[idx])})
		if err == nil {
			atomic.AddInt64(&wins[idx], 1)
			return nil
		}
		if authx.KindOf(err) == authx.KindInvalid {
			return nil
		}
		return err
	})

	violations := 0
	for idx, w := range wins {
		if w != 1 {
			fmt.Printf("VIOLATION: code for %s verified %d times\n", emails[idx], w)
			violations++
		}
	}
	return stats, violations
}

// runPhase calls op for indexes [0, ops) across concurrency workers. Errors returned by
// op count as failures.
func runPhase(ops, concurrency int, op func(i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
		return phaseStats{total: total, failures: failures}
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
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
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
