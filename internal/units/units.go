// Package units converts between human-readable decimal strings and integer
// base-unit token amounts. Every on-chain amount in this service is a *big.Int
// in base units; only this package crosses the boundary to and from decimal
// strings, so precision is never lost implicitly elsewhere.
package units

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseError reports a malformed or unrepresentable decimal amount.
// It is always detected locally, before any chain call is made.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("units: cannot parse %q: %s", e.Input, e.Reason)
}

// Pow10 returns 10^n as *big.Int. Negative n is treated as 0.
func Pow10(n int) *big.Int {
	if n < 0 {
		n = 0
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ToBaseUnits converts a non-negative decimal string into base units for a
// token with the given decimal precision.
//
// The input may not carry more fractional digits than the token supports:
// callers must round or truncate before calling, this function never drops
// precision silently. Returns *ParseError for any malformed input.
func ToBaseUnits(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, &ParseError{Input: amount, Reason: "negative decimals"}
	}
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, &ParseError{Input: amount, Reason: "empty amount"}
	}
	if strings.HasPrefix(s, "-") {
		return nil, &ParseError{Input: amount, Reason: "negative amount"}
	}
	if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart = s[:idx]
		fracPart = s[idx+1:]
		if strings.IndexByte(fracPart, '.') >= 0 {
			return nil, &ParseError{Input: amount, Reason: "multiple decimal points"}
		}
	}
	if intPart == "" && fracPart == "" {
		return nil, &ParseError{Input: amount, Reason: "no digits"}
	}
	if !isDigits(intPart) || !isDigits(fracPart) {
		return nil, &ParseError{Input: amount, Reason: "non-numeric character"}
	}
	if len(fracPart) > decimals {
		return nil, &ParseError{
			Input:  amount,
			Reason: fmt.Sprintf("%d fractional digits exceed token precision of %d", len(fracPart), decimals),
		}
	}

	if intPart == "" {
		intPart = "0"
	}
	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, &ParseError{Input: amount, Reason: "invalid integer part"}
	}
	result := whole.Mul(whole, Pow10(decimals))

	if fracPart != "" {
		frac, ok := new(big.Int).SetString(fracPart, 10)
		if !ok {
			return nil, &ParseError{Input: amount, Reason: "invalid fractional part"}
		}
		frac.Mul(frac, Pow10(decimals-len(fracPart)))
		result.Add(result, frac)
	}
	return result, nil
}

// FromBaseUnits renders a base-unit amount as a decimal string with at most
// displayPrecision fractional digits. Lossy by design, display only.
//
// A nonzero value below 10^-displayPrecision renders as "< 0.…1" instead of
// rounding to zero, so a nonzero balance is never presented as exactly zero.
func FromBaseUnits(v *big.Int, decimals, displayPrecision int) string {
	if v == nil || v.Sign() == 0 {
		return "0"
	}
	if displayPrecision < 0 {
		displayPrecision = 0
	}

	abs := new(big.Int).Abs(v)
	sign := ""
	if v.Sign() < 0 {
		sign = "-"
	}

	// Below the smallest displayable increment: show a floor marker rather
	// than a misleading "0".
	if displayPrecision < decimals {
		limit := Pow10(decimals - displayPrecision)
		if abs.Cmp(limit) < 0 {
			return sign + "< " + smallestDisplayable(displayPrecision)
		}
	}

	scale := Pow10(decimals)
	whole, rem := new(big.Int).QuoRem(abs, scale, new(big.Int))

	if rem.Sign() == 0 {
		return sign + whole.String()
	}

	frac := fmt.Sprintf("%0*s", decimals, rem.String())
	if len(frac) > displayPrecision {
		frac = frac[:displayPrecision]
	}
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return sign + whole.String()
	}
	return sign + whole.String() + "." + frac
}

// smallestDisplayable renders 10^-p as a decimal string.
func smallestDisplayable(p int) string {
	if p == 0 {
		return "1"
	}
	return "0." + strings.Repeat("0", p-1) + "1"
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
