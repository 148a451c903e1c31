package money

import (
	"math/big"
	"testing"
)

func TestNewBPS(t *testing.T) {
	tests := []struct {
		name     string
		percent  float64
		expected BPS
	}{
		{"half percent", 0.5, 50},
		{"one percent", 1.0, 100},
		{"five percent", 5.0, 500},
		{"tenth of percent", 0.1, 10},
		{"zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewBPS(tt.percent); got != tt.expected {
				t.Errorf("got %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestReduceByBPS(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		bps      BPS
		expected string
	}{
		{"0.5% haircut on eth quote", "33300000000000000", 50, "33133500000000000"},
		{"zero bps is identity", "1000000", 0, "1000000"},
		{"1% of round number", "10000", 100, "9900"},
		{"floors toward zero", "3", 50, "2"},
		{"full haircut", "1000", 10000, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, ok := new(big.Int).SetString(tt.amount, 10)
			if !ok {
				t.Fatalf("bad amount %q", tt.amount)
			}
			got := ReduceByBPS(amount, tt.bps)
			if got.String() != tt.expected {
				t.Errorf("got %s, want %s", got.String(), tt.expected)
			}
		})
	}
}

func TestReduceByBPSStrictlyBelow(t *testing.T) {
	amount := big.NewInt(1_000_000)
	for _, bps := range []BPS{1, 10, 50, 100, 500, 9999} {
		got := ReduceByBPS(amount, bps)
		if got.Cmp(amount) >= 0 {
			t.Errorf("bps=%d: %s not strictly below %s", bps, got, amount)
		}
	}
}

func TestScaleByBPS(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		bps      BPS
		expected int64
	}{
		{"1.2x gas headroom", 30_000_000_000, 12000, 36_000_000_000},
		{"identity", 1000, 10000, 1000},
		{"30 bps fee", 1_000_000, 30, 3000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScaleByBPS(big.NewInt(tt.amount), tt.bps)
			if got.Int64() != tt.expected {
				t.Errorf("got %d, want %d", got.Int64(), tt.expected)
			}
		})
	}
}

func TestClampBPS(t *testing.T) {
	tests := []struct {
		name     string
		v        BPS
		expected BPS
	}{
		{"below floor", 5, 10},
		{"within range", 50, 50},
		{"above ceiling", 600, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampBPS(tt.v, 10, 500); got != tt.expected {
				t.Errorf("got %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestGweiToWei(t *testing.T) {
	if got := NewGwei(50).ToWei(); got.Cmp(big.NewInt(50_000_000_000)) != 0 {
		t.Errorf("got %s, want 50000000000", got)
	}
}

func TestBPSFormatting(t *testing.T) {
	if got := NewBPSFromInt(50).Percent(); got != "0.50%" {
		t.Errorf("Percent: got %q", got)
	}
	if got := NewBPSFromInt(50).String(); got != "50 bps" {
		t.Errorf("String: got %q", got)
	}
	if got := NewBPSFromInt(50).Float64(); got != 0.5 {
		t.Errorf("Float64: got %v", got)
	}
}
