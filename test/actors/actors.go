// Package actors drives concurrent registrations for the stress test.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"signupflow/auth"
)

// Registrar is the workflow under test.
type Registrar interface {
	Register(ctx context.Context, email, password string, data auth.UserData) (auth.Result, error)
}

// Stats counts outcomes across all actors.
type Stats struct {
	Succeeded  atomic.Int64
	Duplicates atomic.Int64
	Failed     atomic.Int64
}

func (s *Stats) String() string {
	return fmt.Sprintf("succeeded=%d duplicates=%d failed=%d", s.Succeeded.Load(), s.Duplicates.Load(), s.Failed.Load())
}

var roles = []auth.Role{auth.RoleAgent, auth.RoleClient, "admin", ""}

// Registrant registers fresh addresses with random roles until stop closes.
// A fresh address reported as already registered is an error.
func Registrant(ctx context.Context, svc Registrar, rng *rand.Rand, prefix string, stats *Stats, stop <-chan struct{}) error {
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		email := fmt.Sprintf("%s-%d-%d@stress.test", prefix, i, rng.Int63())
		role := roles[rng.Intn(len(roles))]

		_, err := svc.Register(ctx, email, "stress-pass", auth.UserData{Name: prefix, Role: role})
		switch {
		case err == nil:
			stats.Succeeded.Add(1)
		case errors.Is(err, auth.ErrAccountExists):
			return fmt.Errorf("fresh address %s reported as duplicate", email)
		case errors.Is(err, auth.ErrNoUserReturned):
			return fmt.Errorf("register %s: %w", email, err)
		default:
			stats.Failed.Add(1)
		}

		time.Sleep(time.Duration(5+rng.Intn(15)) * time.Millisecond)
	}
}

// DuplicateRacer keeps registering the same address. Only one attempt across
// all racers may succeed; the rest must be reported as duplicates.
func DuplicateRacer(ctx context.Context, svc Registrar, email string, role auth.Role, stats *Stats, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		_, err := svc.Register(ctx, email, "stress-pass", auth.UserData{Role: role})
		switch {
		case err == nil:
			stats.Succeeded.Add(1)
		case errors.Is(err, auth.ErrAccountExists):
			stats.Duplicates.Add(1)
		default:
			stats.Failed.Add(1)
		}

		time.Sleep(2 * time.Millisecond)
	}
}
