// ABOUTME: Tests for the shared client registry
// ABOUTME: Verifies reference counting, teardown and key derivation
package netclock

import (
	"errors"
	"testing"

	"github.com/Resonate-Protocol/netclock-go/pkg/logger"
)

func TestRegistryRefCounting(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	created := 0
	factory := func() (*Client, error) {
		created++
		return NewClient(Config{URLs: []string{"https://a"}, Logger: logger.NewNopLogger()})
	}

	h1, err := reg.Acquire("shared", factory)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	h2, err := reg.Acquire("shared", factory)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if created != 1 {
		t.Errorf("expected factory called once, got %d", created)
	}
	if h1.Client != h2.Client {
		t.Error("expected both handles to share one client")
	}
	if h1.ID == h2.ID {
		t.Error("expected distinct handle IDs")
	}
	if reg.Refs("shared") != 2 {
		t.Errorf("expected 2 refs, got %d", reg.Refs("shared"))
	}

	if err := reg.Release(h1); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("expected client to survive first release, got %d entries", reg.Len())
	}
	if err := h2.Client.Start(); err != nil {
		t.Errorf("expected shared client still usable, got %v", err)
	}

	// Releasing the same handle again must not steal h2's reference
	if err := reg.Release(h1); err != nil {
		t.Errorf("double release should be a no-op, got %v", err)
	}
	if reg.Refs("shared") != 1 {
		t.Errorf("expected 1 ref, got %d", reg.Refs("shared"))
	}

	if err := reg.Release(h2); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("expected registry empty, got %d", reg.Len())
	}
	if err := h2.Client.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected client closed after last release, got %v", err)
	}
}

func TestRegistryFactoryError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("boom")

	_, err := reg.Acquire("k", func() (*Client, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Errorf("expected factory error, got %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("expected no entry after failed factory, got %d", reg.Len())
	}
}

func TestRegistryReleaseUnknown(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Release(nil); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("expected ErrUnknownHandle for nil, got %v", err)
	}
	if err := reg.Release(&Handle{Key: "nope"}); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("expected ErrUnknownHandle, got %v", err)
	}
}

func TestRegistryAcquireConfig(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	cfg := Config{URLs: []string{"https://b", "https://a"}, Logger: logger.NewNopLogger()}
	h1, err := reg.AcquireConfig(cfg)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	reordered := Config{URLs: []string{"https://a", "https://b"}, Logger: logger.NewNopLogger()}
	h2, err := reg.AcquireConfig(reordered)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if h1.Client != h2.Client {
		t.Error("expected URL order not to affect sharing")
	}

	h3, err := reg.AcquireConfig(Config{URLs: cfg.URLs, Strategy: Average, Logger: logger.NewNopLogger()})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if h3.Client == h1.Client {
		t.Error("expected a different strategy to get its own client")
	}
	if reg.Len() != 2 {
		t.Errorf("expected 2 clients, got %d", reg.Len())
	}
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"cache key wins", Config{CacheKey: "mine", URLs: []string{"https://a"}}, "mine"},
		{"sorted urls", Config{URLs: []string{"https://b", "https://a"}}, "https://a,https://b:first-success:main"},
		{"single url", Config{URL: "https://a"}, "https://a:first-success:main"},
		{"average worker", Config{URLs: []string{"https://a"}, Strategy: Average, UseWorker: true}, "https://a:average:worker"},
		{"no urls", Config{}, ":first-success:main"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeyFor(tt.cfg); got != tt.want {
				t.Errorf("KeyFor() = %q, expected %q", got, tt.want)
			}
		})
	}
}

func TestKeyForDoesNotMutate(t *testing.T) {
	urls := []string{"https://b", "https://a"}
	KeyFor(Config{URLs: urls})
	if urls[0] != "https://b" {
		t.Errorf("expected caller's slice untouched, got %v", urls)
	}
}
