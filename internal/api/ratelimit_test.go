package api

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if _, ok := rl.allow("client-a"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	retryAfter, ok := rl.allow("client-a")
	if ok {
		t.Fatal("fourth request should be rejected")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Errorf("retry-after = %v", retryAfter)
	}
}

func TestRateLimiter_PerClientWindows(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	if _, ok := rl.allow("a"); !ok {
		t.Fatal("first request for a must pass")
	}
	if _, ok := rl.allow("b"); !ok {
		t.Fatal("client b has its own window")
	}
	if _, ok := rl.allow("a"); ok {
		t.Fatal("second request for a must be rejected")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := newRateLimiter(1, 10*time.Millisecond)
	if _, ok := rl.allow("a"); !ok {
		t.Fatal("first request must pass")
	}
	time.Sleep(15 * time.Millisecond)
	if _, ok := rl.allow("a"); !ok {
		t.Error("request after the window must pass again")
	}
}
