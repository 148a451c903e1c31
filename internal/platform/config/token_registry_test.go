package config

import (
	"testing"
)

func TestParsePair_Valid(t *testing.T) {
	tests := []struct {
		name        string
		pairName    string
		expectedIn  string
		expectedOut string
	}{
		{"ETH-USDC", "ETH-USDC", "ETH", "USDC"},
		{"USDC-ETH", "USDC-ETH", "USDC", "ETH"},
		{"lowercase symbols", "eth-usdc", "ETH", "USDC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out, err := ParsePair(tt.pairName)
			if err != nil {
				t.Fatalf("ParsePair(%s) failed: %v", tt.pairName, err)
			}

			if in.Symbol != tt.expectedIn {
				t.Errorf("input symbol: expected %s, got %s", tt.expectedIn, in.Symbol)
			}
			if out.Symbol != tt.expectedOut {
				t.Errorf("output symbol: expected %s, got %s", tt.expectedOut, out.Symbol)
			}
		})
	}
}

func TestParsePair_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		pairName string
	}{
		{"same token", "ETH-ETH"},
		{"unknown token", "ETH-DOGE"},
		{"missing separator", "ETHUSDC"},
		{"too many parts", "ETH-USDC-DAI"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParsePair(tt.pairName); err == nil {
				t.Errorf("expected error for %q", tt.pairName)
			}
		})
	}
}

func TestTokenEqual_CaseInsensitive(t *testing.T) {
	a := TokenInfo{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"}
	b := TokenInfo{Symbol: "usdc2", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"}

	if !a.Equal(b) {
		t.Error("tokens with same address in different case should be equal")
	}

	c := TokenInfo{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"}
	if a.Equal(c) {
		t.Error("tokens with different addresses should not be equal")
	}
}

func TestNativeSentinel(t *testing.T) {
	eth, err := LookupToken("ETH")
	if err != nil {
		t.Fatalf("LookupToken(ETH) failed: %v", err)
	}
	if !eth.IsNative() {
		t.Error("ETH should be native")
	}

	usdc, err := LookupToken("USDC")
	if err != nil {
		t.Fatalf("LookupToken(USDC) failed: %v", err)
	}
	if usdc.IsNative() {
		t.Error("USDC should not be native")
	}
}

func TestWrapped(t *testing.T) {
	eth := TokenRegistry["ETH"]
	weth := Wrapped(eth)
	if weth.Symbol != "WETH" {
		t.Errorf("Wrapped(ETH): expected WETH, got %s", weth.Symbol)
	}
	if weth.Decimals != eth.Decimals {
		t.Errorf("wrapped decimals must match native: %d != %d", weth.Decimals, eth.Decimals)
	}

	usdc := TokenRegistry["USDC"]
	if got := Wrapped(usdc); !got.Equal(usdc) {
		t.Error("Wrapped(USDC) should be identity")
	}
}
