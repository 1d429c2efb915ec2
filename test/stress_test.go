package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"signupflow/auth"
	"signupflow/localauth"
	"signupflow/profile"
	"signupflow/test/actors"
	"signupflow/test/chaos"
	"signupflow/test/infra"
	"signupflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 15*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent registrants")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flChaos       = flag.Bool("chaos", false, "terminate random database backends while running")
)

func TestRegistrationConcurrency(t *testing.T) {
	if os.Getenv("SIGNUPFLOW_STRESS") != "1" {
		t.Skip("SIGNUPFLOW_STRESS is not set; skipping stress test")
	}
	seed := *flSeed

	h := infra.NewHarness(t)
	pool := h.Pool()

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	provider := localauth.NewProvider(pool, localauth.Config{JWTSecret: "stress-secret", BcryptCost: bcrypt.MinCost})
	svc := auth.NewService(provider, profile.NewRepository(pool), zerolog.Nop(), auth.Options{Compensate: true})

	checks := oracles.Core()
	if !*flChaos {
		checks = append(checks, oracles.Consistency()...)
	}

	var stats, raceStats actors.Stats
	g, gctx := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	for i := 0; i < *flConcurrency; i++ {
		rng := rand.New(rand.NewSource(seed + int64(i)))
		prefix := fmt.Sprintf("actor%d", i)
		g.Go(func() error {
			return actors.Registrant(gctx, svc, rng, prefix, &stats, stop)
		})
		g.Go(func() error {
			return actors.DuplicateRacer(gctx, svc, "contested@stress.test", auth.RoleAgent, &raceStats, stop)
		})
	}
	if *flChaos {
		go chaos.TerminateRandomBackend(gctx, pool, rand.New(rand.NewSource(seed)), 500*time.Millisecond, stop)
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

loop:
	for time.Now().Before(deadline) {
		select {
		case <-gctx.Done():
			break loop
		case <-ticker.C:
			if failOnOracle(t, gctx, pool, checks, seed) {
				break loop
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("actors errored: %v (seed=%d)", err, seed)
	}

	// Final pass once all writers are quiet.
	failOnOracle(t, ctx, pool, checks, seed)

	// A killed profile insert is compensated, which frees the address again.
	if got := raceStats.Succeeded.Load(); got > 1 && !*flChaos {
		t.Fatalf("contested address registered %d times (seed=%d)", got, seed)
	}
	t.Logf("registrants: %s; racers: %s", stats.String(), raceStats.String())
}

func failOnOracle(t *testing.T, ctx context.Context, pool *pgxpool.Pool, checks []oracles.Oracle, seed int64) bool {
	t.Helper()
	name, row, err := oracles.Run(ctx, pool, checks)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		if *flChaos {
			t.Logf("oracle query interrupted: %v", err)
			return false
		}
		t.Fatalf("oracle error: %v", err)
	}
	if name != "" {
		dumpRecent(t, ctx, pool)
		t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
	}
	return false
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	dumps := []struct {
		name string
		sql  string
	}{
		{"auth_identities", `SELECT id, email, user_metadata, created_at FROM auth_identities ORDER BY created_at DESC LIMIT 25`},
		{"agent_profiles", `SELECT user_id, subscription_tier, subscription_status FROM agent_profiles ORDER BY created_at DESC LIMIT 25`},
		{"client_profiles", `SELECT user_id, preferred_areas, preferred_contact FROM client_profiles ORDER BY created_at DESC LIMIT 25`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", cols[i].Name, vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
