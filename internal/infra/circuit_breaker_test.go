package infra

import (
	"testing"
	"time"
)

func testBreaker(timeout time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          timeout,
	})
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := testBreaker(time.Minute)

	if !cb.Allow() {
		t.Fatal("closed breaker must allow")
	}

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	if cb.GetState() != StateOpen {
		t.Errorf("state = %s; want OPEN", cb.GetState())
	}
	if cb.Allow() {
		t.Error("open breaker must reject")
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := testBreaker(time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.GetState() != StateClosed {
		t.Errorf("state = %s; want CLOSED (count reset on success)", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := testBreaker(10 * time.Millisecond)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("breaker should half-open after timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("state = %s; want HALF_OPEN", cb.GetState())
	}

	cb.RecordSuccess()
	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Errorf("state = %s; want CLOSED after recovery", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := testBreaker(10 * time.Millisecond)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(20 * time.Millisecond)
	cb.Allow() // transition to half-open
	cb.RecordFailure()

	if cb.GetState() != StateOpen {
		t.Errorf("state = %s; want OPEN after half-open failure", cb.GetState())
	}
}
