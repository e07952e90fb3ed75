package mirror

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// RetryConfig defines retry behavior for object store operations.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns sensible defaults for remote stores.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
	}
}

// RetryableStore wraps an ObjectStore with retry logic.
type RetryableStore struct {
	store  ObjectStore
	config RetryConfig
}

func NewRetryableStore(store ObjectStore, config RetryConfig) *RetryableStore {
	return &RetryableStore{store: store, config: config}
}

func (r *RetryableStore) List(prefix string) ([]string, error) {
	var out []string
	err := r.do("list", func() error {
		var err error
		out, err = r.store.List(prefix)
		return err
	})
	return out, err
}

func (r *RetryableStore) Get(key string) ([]byte, error) {
	var out []byte
	err := r.do("get", func() error {
		var err error
		out, err = r.store.Get(key)
		return err
	})
	return out, err
}

func (r *RetryableStore) PutAtomic(key string, data []byte) error {
	return r.do("put_atomic", func() error {
		return r.store.PutAtomic(key, data)
	})
}

func (r *RetryableStore) do(op string, f func() error) error {
	var lastErr error
	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(r.calculateDelay(attempt))
		}
		err := f()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, r.config.MaxAttempts, lastErr)
}

// calculateDelay implements exponential backoff with jitter.
func (r *RetryableStore) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.BaseDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	jitter := delay * 0.25 * (2*float64(time.Now().UnixNano()%1000)/1000 - 1)
	return time.Duration(delay + jitter)
}

// isRetryableError classifies transient faults worth another attempt.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	errStr := err.Error()
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"server error",
		"throttling",
		"SlowDown",
		"RequestTimeout",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
