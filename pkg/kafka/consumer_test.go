package kafka

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestBackoffWithJitterBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("backoff stays within [exp/2, max]", prop.ForAll(
		func(minMs, spanMs int64, attempt int) bool {
			min := time.Duration(minMs) * time.Millisecond
			max := min + time.Duration(spanMs)*time.Millisecond
			d := backoffWithJitter(min, max, attempt)

			exp := min * time.Duration(1<<uint(attempt-1))
			if exp > max || exp <= 0 {
				exp = max
			}
			return d >= exp-exp/2 && d <= exp && d <= max
		},
		gen.Int64Range(1, 500),
		gen.Int64Range(0, 5000),
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}

func TestBackoffDefaults(t *testing.T) {
	if d := backoffWithJitter(0, 0, 1); d <= 0 || d > 50*time.Millisecond {
		t.Fatalf("default backoff = %v", d)
	}
}

func TestIsPermanent(t *testing.T) {
	base := errors.New("bad payload")
	if !isPermanent(&Permanent{Err: base}) {
		t.Fatalf("permanent not detected")
	}
	wrapped := fmt.Errorf("handle: %w", &Permanent{Err: base})
	if !isPermanent(wrapped) || !errors.Is(wrapped, base) {
		t.Fatalf("wrapped permanent not detected")
	}
	if isPermanent(base) {
		t.Fatalf("plain error reported permanent")
	}
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	if _, err := NewConsumer(nil); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
