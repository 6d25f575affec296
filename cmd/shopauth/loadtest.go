package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/shopauth/internal"
	"github.com/MrEthical07/shopauth/session"
)

var (
	loadSessions    int
	loadConcurrency int
	loadOps         int
	loadRedisAddr   string
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Measure cookie session read and rotation latency against Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		if loadSessions <= 0 || loadConcurrency <= 0 || loadOps <= 0 {
			return errors.New("sessions, concurrency, and ops must be > 0")
		}
		return runLoadtest(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(loadtestCmd)
	f := loadtestCmd.Flags()
	f.IntVar(&loadSessions, "sessions", 100000, "number of sessions to seed")
	f.IntVar(&loadConcurrency, "concurrency", 256, "number of concurrent workers")
	f.IntVar(&loadOps, "ops", 200000, "operations per phase (read + rotate)")
	f.StringVar(&loadRedisAddr, "redis-addr", "", "redis address; miniredis is used when empty")
}

// loadSlot is one seeded session. Rotation replaces sid under mu.
type loadSlot struct {
	mu  sync.Mutex
	sid string
}

func runLoadtest(ctx context.Context) error {
	addr := loadRedisAddr
	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	store := session.NewStore(client, cfg.Session.RedisPrefix, cfg.Session.RememberMeLifetime)

	slots := make([]loadSlot, loadSessions)
	fmt.Printf("seeding %d sessions...\n", loadSessions)
	startSeed := time.Now()
	for i := range slots {
		sid, err := internal.NewSessionID()
		if err != nil {
			return err
		}
		slots[i].sid = sid
		if err := store.Save(ctx, buildSession(sid, i)); err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	readStats := runPhase(loadOps, loadConcurrency, 7919, func(r *rand.Rand, i int) error {
		slot := &slots[r.Intn(len(slots))]
		slot.mu.Lock()
		sid := slot.sid
		slot.mu.Unlock()
		_, err := store.Get(ctx, sid)
		return err
	})
	rotateStats := runPhase(loadOps, loadConcurrency, 6151, func(r *rand.Rand, i int) error {
		idx := r.Intn(len(slots))
		slot := &slots[idx]
		slot.mu.Lock()
		defer slot.mu.Unlock()
		next, err := internal.NewSessionID()
		if err != nil {
			return err
		}
		if err := store.Save(ctx, buildSession(next, idx)); err != nil {
			return err
		}
		if err := store.Delete(ctx, slot.sid); err != nil {
			return err
		}
		slot.sid = next
		return nil
	})

	fmt.Println("---- results ----")
	printStats(os.Stdout, "read", readStats)
	printStats(os.Stdout, "rotate", rotateStats)
	return nil
}

// runPhase spreads ops calls of op over concurrency workers and records
// the latency of each call.
func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
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
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func buildSession(sid string, i int) *session.Session {
	return &session.Session{
		SessionID:     sid,
		UserID:        fmt.Sprintf("user-%d", i%1000),
		SecurityStamp: "loadtest",
		Lifetime:      24 * time.Hour,
		CreatedAt:     time.Now().Unix(),
	}
}
