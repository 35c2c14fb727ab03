package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestNew_WithNilConfig(t *testing.T) {
	r := New(nil)
	if r.config.InitialInterval != 500*time.Millisecond {
		t.Errorf("InitialInterval = %v, want 500ms", r.config.InitialInterval)
	}
	if r.config.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", r.config.MaxRetries)
	}
}

func TestNew_DoesNotMutateInput(t *testing.T) {
	cfg := &Config{}
	New(cfg)
	if cfg.InitialInterval != 0 {
		t.Errorf("input config was mutated: %+v", cfg)
	}
}

func TestRetrier_Do_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetrier_Do_MaxRetriesExceeded(t *testing.T) {
	opErr := errors.New("still down")
	attempts := 0
	err := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
		attempts++
		return opErr
	})

	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("err = %v, want ErrMaxRetriesExceeded", err)
	}
	if !errors.Is(err, opErr) {
		t.Errorf("err = %v, want wrapped operation error", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetrier_Do_PermanentError(t *testing.T) {
	authErr := errors.New("authentication failed")
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		return Permanent(authErr)
	})

	if !errors.Is(err, authErr) {
		t.Errorf("err = %v, want %v", err, authErr)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetrier_Do_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.InitialInterval = time.Second
	cfg.MaxInterval = time.Second

	attempts := 0
	err := New(cfg).OnRetry(func(int, error, time.Duration) { cancel() }).Do(ctx, func(ctx context.Context) error {
		attempts++
		return errors.New("fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetrier_Interval(t *testing.T) {
	r := New(&Config{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
	}
	for _, tt := range tests {
		if got := r.Interval(tt.attempt); got != tt.want {
			t.Errorf("Interval(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetrier_IntervalJitterBounds(t *testing.T) {
	r := New(&Config{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2, JitterFactor: 0.5})
	for i := 0; i < 100; i++ {
		got := r.Interval(0)
		if got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("Interval(0) = %v, want within [50ms, 150ms]", got)
		}
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
