package safe

import (
	"math"
	"testing"
)

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestSafeAdd(t *testing.T) {
	if got := SafeAdd(1, 2); got != 3 {
		t.Errorf("SafeAdd(1,2) = %d", got)
	}
	if got := SafeAdd(-5, 3); got != -2 {
		t.Errorf("SafeAdd(-5,3) = %d", got)
	}
	expectPanic(t, "add overflow", func() { SafeAdd(math.MaxInt64, 1) })
	expectPanic(t, "add underflow", func() { SafeAdd(math.MinInt64, -1) })
}

func TestSafeSub(t *testing.T) {
	if got := SafeSub(5, 3); got != 2 {
		t.Errorf("SafeSub(5,3) = %d", got)
	}
	expectPanic(t, "sub underflow", func() { SafeSub(math.MinInt64, 1) })
	expectPanic(t, "sub overflow", func() { SafeSub(math.MaxInt64, -1) })
}

func TestSafeMul(t *testing.T) {
	if got := SafeMul(4, 5); got != 20 {
		t.Errorf("SafeMul(4,5) = %d", got)
	}
	if got := SafeMul(0, math.MaxInt64); got != 0 {
		t.Errorf("SafeMul(0,max) = %d", got)
	}
	if got := SafeMul(-3, 7); got != -21 {
		t.Errorf("SafeMul(-3,7) = %d", got)
	}
	expectPanic(t, "mul overflow", func() { SafeMul(math.MaxInt64, 2) })
	expectPanic(t, "mul overflow neg", func() { SafeMul(math.MinInt64, 2) })
}

func TestSafeDiv(t *testing.T) {
	if got := SafeDiv(20, 5); got != 4 {
		t.Errorf("SafeDiv(20,5) = %d", got)
	}
	expectPanic(t, "div by zero", func() { SafeDiv(1, 0) })
	expectPanic(t, "div overflow", func() { SafeDiv(math.MinInt64, -1) })
}
