package qr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	employeedomain "workforce-auth/internal/employee/domain"
	"workforce-auth/internal/qr/domain"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func ana() employeedomain.Snapshot {
	return employeedomain.Snapshot{
		ID:             "e1",
		OrganizationID: "o1",
		FirstName:      "Ana",
		Email:          "ana@acme.com",
		Active:         true,
		Organization:   employeedomain.OrganizationRef{ID: "o1", Name: "Acme"},
	}
}

func waiting(id string) *domain.Session {
	return &domain.Session{ID: id, Status: domain.StatusWaiting, CreatedAt: t0, ExpiresAt: t0.Add(5 * time.Minute)}
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore(clockwork.NewFakeClockAt(t0)) },
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return NewRedisStore(client, clockwork.NewFakeClockAt(t0))
		},
	}
	for name, factory := range stores {
		t.Run(name, func(t *testing.T) { fn(t, factory(t)) })
	}
}

func TestStore_CreateGet(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if got, err := s.Get(ctx, "qr_missing"); err != nil || got != nil {
			t.Fatalf("missing Get = %v, %v", got, err)
		}
		if err := s.Create(ctx, waiting("qr_a")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := s.Get(ctx, "qr_a")
		if err != nil || got == nil {
			t.Fatalf("Get = %v, %v", got, err)
		}
		if got.Status != domain.StatusWaiting || got.Employee != nil || !got.ExpiresAt.Equal(t0.Add(5*time.Minute)) || !got.CreatedAt.Equal(t0) {
			t.Errorf("Get = %+v", got)
		}
	})
}

func TestStore_AuthenticateThenClaimOnce(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Create(ctx, waiting("qr_a")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := s.Claim(ctx, "qr_a"); !errors.Is(err, ErrNotAuthenticated) {
			t.Errorf("claim before approval: want ErrNotAuthenticated, got %v", err)
		}
		if err := s.Authenticate(ctx, "qr_a", ana(), t0.Add(time.Minute)); err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if err := s.Authenticate(ctx, "qr_a", ana(), t0.Add(time.Minute)); !errors.Is(err, ErrNotWaiting) {
			t.Errorf("second approval: want ErrNotWaiting, got %v", err)
		}
		got, _ := s.Get(ctx, "qr_a")
		if got.Status != domain.StatusAuthenticated || got.Employee == nil || got.Employee.ID != "e1" {
			t.Errorf("after approval = %+v", got)
		}

		claimed, err := s.Claim(ctx, "qr_a")
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if claimed.Employee == nil || *claimed.Employee != ana() {
			t.Errorf("claimed employee = %+v", claimed.Employee)
		}
		if _, err := s.Claim(ctx, "qr_a"); !errors.Is(err, ErrNotFound) {
			t.Errorf("second claim: want ErrNotFound, got %v", err)
		}
		if got, _ := s.Get(ctx, "qr_a"); got != nil {
			t.Errorf("claimed session should be gone, got %+v", got)
		}
	})
}

func TestStore_AuthenticateRejects(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Authenticate(ctx, "qr_none", ana(), t0); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing: want ErrNotFound, got %v", err)
		}
		if err := s.Create(ctx, waiting("qr_late")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := s.Authenticate(ctx, "qr_late", ana(), t0.Add(5*time.Minute)); !errors.Is(err, ErrExpired) {
			t.Errorf("at expiry: want ErrExpired, got %v", err)
		}
		if err := s.Create(ctx, waiting("qr_marked")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := s.Expire(ctx, "qr_marked"); err != nil {
			t.Fatalf("Expire: %v", err)
		}
		if err := s.Authenticate(ctx, "qr_marked", ana(), t0); !errors.Is(err, ErrExpired) {
			t.Errorf("marked expired: want ErrExpired, got %v", err)
		}
		if err := s.Expire(ctx, "qr_none"); err != nil {
			t.Errorf("Expire missing: %v", err)
		}
		if err := s.Delete(ctx, "qr_marked"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if got, _ := s.Get(ctx, "qr_marked"); got != nil {
			t.Error("deleted session still present")
		}
	})
}

func TestStore_ConcurrentApprovalsSucceedOnce(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Create(ctx, waiting("qr_race")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		var ok int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if s.Authenticate(ctx, "qr_race", ana(), t0) == nil {
					atomic.AddInt32(&ok, 1)
				}
			}()
		}
		wg.Wait()
		if ok != 1 {
			t.Errorf("successful approvals = %d, want 1", ok)
		}
	})
}

func TestMemoryStore_PrunesOldSessions(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	s := NewMemoryStore(clock)
	ctx := context.Background()
	if err := s.Create(ctx, waiting("qr_old")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	clock.Advance(5*time.Minute + retention + time.Second)
	if err := s.Create(ctx, waiting("qr_new")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got, _ := s.Get(ctx, "qr_old"); got != nil {
		t.Error("old session should be pruned")
	}
}

func TestRedisStore_ExpireNeverRecreatesKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	s := NewRedisStore(client, clockwork.NewFakeClockAt(t0))
	ctx := context.Background()

	if err := s.Create(ctx, waiting("qr_live")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ttl := mr.TTL(redisKey("qr_live"))
	if err := s.Expire(ctx, "qr_live"); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if got := mr.HGet(redisKey("qr_live"), "status"); got != string(domain.StatusExpired) {
		t.Errorf("status = %q", got)
	}
	if got := mr.TTL(redisKey("qr_live")); got != ttl || got <= 0 {
		t.Errorf("TTL = %v, want %v kept", got, ttl)
	}

	if err := s.Create(ctx, waiting("qr_gone")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Authenticate(ctx, "qr_gone", ana(), t0); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := s.Claim(ctx, "qr_gone"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := s.Expire(ctx, "qr_gone"); err != nil {
		t.Fatalf("Expire after claim: %v", err)
	}
	if mr.Exists(redisKey("qr_gone")) {
		t.Error("Expire recreated a claimed session")
	}
}
