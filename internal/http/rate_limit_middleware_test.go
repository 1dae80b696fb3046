package httpx

import (
	"testing"
	"time"
)

func TestMemoryRateLimiterAllow(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()

	for i := 0; i < 3; i++ {
		decision := rl.Allow("ip:192.0.2.1", 3, time.Minute)
		if !decision.allowed {
			t.Fatalf("request %d unexpectedly denied", i+1)
		}
	}
	decision := rl.Allow("ip:192.0.2.1", 3, time.Minute)
	if decision.allowed {
		t.Fatal("expected denial after limit exhausted")
	}
	if decision.count != 3 {
		t.Fatalf("expected count 3, got %d", decision.count)
	}

	// Separate keys do not share windows.
	if other := rl.Allow("ip:192.0.2.2", 3, time.Minute); !other.allowed {
		t.Fatal("unrelated key was denied")
	}
}

func TestMemoryRateLimiterWindowReset(t *testing.T) {
	rl := NewMemoryRateLimiter().(*memoryRateLimiter)
	defer rl.Close()

	rl.Allow("ip:192.0.2.1", 1, time.Minute)
	if decision := rl.Allow("ip:192.0.2.1", 1, time.Minute); decision.allowed {
		t.Fatal("expected denial inside window")
	}

	// Expire the window manually and confirm the next request starts fresh.
	rl.mu.Lock()
	state := rl.entries["ip:192.0.2.1"]
	state.windowEnd = time.Now().Add(-time.Second)
	rl.entries["ip:192.0.2.1"] = state
	rl.mu.Unlock()

	if decision := rl.Allow("ip:192.0.2.1", 1, time.Minute); !decision.allowed {
		t.Fatal("expected fresh window after expiry")
	}
}

func TestMemoryRateLimiterCleanup(t *testing.T) {
	rl := NewMemoryRateLimiter().(*memoryRateLimiter)
	defer rl.Close()

	rl.Allow("ip:192.0.2.1", 5, time.Minute)
	rl.cleanup(time.Now().Add(2 * time.Minute))

	rl.mu.Lock()
	remaining := len(rl.entries)
	rl.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected expired entries swept, %d remain", remaining)
	}
}

func TestMemoryRateLimiterCloseIdempotent(t *testing.T) {
	rl := NewMemoryRateLimiter()
	rl.Close()
	rl.Close()
}
