package backoff

import (
	"testing"
	"time"
)

func TestExponentialDelay(t *testing.T) {
	p := Params{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2.0}

	tests := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{"negative attempt", -1, 100 * time.Millisecond},
		{"attempt 0", 0, 100 * time.Millisecond},
		{"attempt 1", 1, 200 * time.Millisecond},
		{"attempt 2", 2, 400 * time.Millisecond},
		{"attempt 3", 3, 800 * time.Millisecond},
		{"capped", 4, time.Second},
		{"overflow guarded", 1000, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Exponential{}).Delay(tt.attempt, p); got != tt.expected {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestExponentialJitterStaysInBounds(t *testing.T) {
	p := Params{Initial: 100 * time.Millisecond, Max: 5 * time.Second, Multiplier: 2.0, Jitter: 0.5}

	for i := 0; i < 100; i++ {
		got := (Exponential{}).Delay(1, p)
		if got < 200*time.Millisecond || got > 300*time.Millisecond {
			t.Fatalf("Delay(1) = %v, want within [200ms, 300ms]", got)
		}
	}
}

func TestExponentialJitterNeverExceedsMax(t *testing.T) {
	p := Params{Initial: 900 * time.Millisecond, Max: time.Second, Multiplier: 1.0, Jitter: 1.0}

	for i := 0; i < 100; i++ {
		if got := (Exponential{}).Delay(0, p); got > time.Second {
			t.Fatalf("Delay(0) = %v exceeds max", got)
		}
	}
}

func TestDecorrelatedDelay(t *testing.T) {
	p := Params{Initial: 100 * time.Millisecond, Max: 5 * time.Second}

	tests := []struct {
		name        string
		attempt     int
		minExpected time.Duration
		maxExpected time.Duration
	}{
		{"attempt 0", 0, 100 * time.Millisecond, 100 * time.Millisecond},
		{"attempt 1", 1, 100 * time.Millisecond, 300 * time.Millisecond},
		{"attempt 2", 2, 100 * time.Millisecond, 900 * time.Millisecond},
		{"capped", 20, 100 * time.Millisecond, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := (Decorrelated{}).Delay(tt.attempt, p)
			if got < tt.minExpected || got > tt.maxExpected {
				t.Errorf("Delay(%d) = %v, want between %v and %v",
					tt.attempt, got, tt.minExpected, tt.maxExpected)
			}
		})
	}
}

func TestClampJitter(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{-0.5, 0.0},
		{0.0, 0.0},
		{0.5, 0.5},
		{1.0, 1.0},
		{1.5, 1.0},
	}

	for _, tt := range tests {
		if got := ClampJitter(tt.input); got != tt.expected {
			t.Errorf("ClampJitter(%f) = %f, want %f", tt.input, got, tt.expected)
		}
	}
}

func TestPow(t *testing.T) {
	tests := []struct {
		base     float64
		exponent int
		expected float64
	}{
		{2.0, 0, 1.0},
		{2.0, 1, 2.0},
		{2.0, 3, 8.0},
		{3.0, 2, 9.0},
	}

	for _, tt := range tests {
		if got := Pow(tt.base, tt.exponent); got != tt.expected {
			t.Errorf("Pow(%f, %d) = %f, want %f", tt.base, tt.exponent, got, tt.expected)
		}
	}
}

func BenchmarkExponentialDelay(b *testing.B) {
	p := Params{Initial: 100 * time.Millisecond, Max: 5 * time.Second, Multiplier: 2.0, Jitter: 0.1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		(Exponential{}).Delay(i%10, p)
	}
}
