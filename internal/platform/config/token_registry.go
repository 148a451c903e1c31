package config

import (
	"fmt"
	"strings"
)

// NativeAddress is the sentinel address used for the chain's native asset.
// ETH has no contract of its own; the router wraps and unwraps through WETH.
const NativeAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// TokenInfo contains token identity and display metadata.
// Defined once at process start from the static registry below; the service
// never discovers tokens dynamically.
type TokenInfo struct {
	Symbol   string // Token symbol (ETH, WETH, USDC)
	Name     string // Display name
	Address  string // Contract address, or NativeAddress for ETH
	Decimals int    // Base-unit precision (18 for ETH/WETH, 6 for USDC)
	LogoURI  string // Display metadata for the UI layer
}

// IsNative reports whether the token is the chain's native asset.
func (t TokenInfo) IsNative() bool {
	return strings.EqualFold(t.Address, NativeAddress)
}

// Equal reports token identity. Two tokens are equal iff their addresses
// match case-insensitively; symbols are display-only.
func (t TokenInfo) Equal(other TokenInfo) bool {
	return strings.EqualFold(t.Address, other.Address)
}

// TokenRegistry maps symbols to on-chain token information for exactly the
// supported set on Ethereum mainnet.
var TokenRegistry = map[string]TokenInfo{
	"ETH": {
		Symbol:   "ETH",
		Name:     "Ether",
		Address:  NativeAddress,
		Decimals: 18,
		LogoURI:  "https://assets.coingecko.com/coins/images/279/small/ethereum.png",
	},
	"WETH": {
		Symbol:   "WETH",
		Name:     "Wrapped Ether",
		Address:  "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		Decimals: 18,
		LogoURI:  "https://assets.coingecko.com/coins/images/2518/small/weth.png",
	},
	"USDC": {
		Symbol:   "USDC",
		Name:     "USD Coin",
		Address:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Decimals: 6,
		LogoURI:  "https://assets.coingecko.com/coins/images/6319/small/usdc.png",
	},
}

// LookupToken returns the registry entry for a symbol.
func LookupToken(symbol string) (TokenInfo, error) {
	token, ok := TokenRegistry[strings.ToUpper(symbol)]
	if !ok {
		return TokenInfo{}, fmt.Errorf("unknown token: %s (supported: ETH, WETH, USDC)", symbol)
	}
	return token, nil
}

// Wrapped resolves the on-chain form of a token: the native asset maps to its
// wrapped equivalent, everything else is already a contract token.
func Wrapped(t TokenInfo) TokenInfo {
	if !t.IsNative() {
		return t
	}
	return TokenRegistry["WETH"]
}

// ParsePair parses a trading pair string like "ETH-USDC" into input and
// output token info. Input and output must differ.
func ParsePair(pairName string) (in TokenInfo, out TokenInfo, err error) {
	parts := strings.Split(pairName, "-")
	if len(parts) != 2 {
		return TokenInfo{}, TokenInfo{}, fmt.Errorf("invalid pair format: %s (expected IN-OUT like ETH-USDC)", pairName)
	}

	in, err = LookupToken(parts[0])
	if err != nil {
		return TokenInfo{}, TokenInfo{}, err
	}

	out, err = LookupToken(parts[1])
	if err != nil {
		return TokenInfo{}, TokenInfo{}, err
	}

	if in.Equal(out) {
		return TokenInfo{}, TokenInfo{}, fmt.Errorf("input and output tokens must differ: %s", pairName)
	}

	return in, out, nil
}
