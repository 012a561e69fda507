package domain

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// symbolDecimals declares the price precision per canonical symbol. Trigger
// comparisons scale both sides by this precision and compare as integers, so
// representation error in float64 marks can never flip a trigger.
var symbolDecimals = map[string]int32{
	"BTCUSDT": 3,
	"ETHUSDT": 3,
	"SOLUSDT": 3,
	"BNBUSDT": 3,
}

const defaultDecimals int32 = 3

// CanonicalSymbol normalizes the symbol spellings seen on order payloads and
// upstream feeds (BTC, BTCT, BTCUSD, btcusdt, ...) to the canonical USDT pair.
func CanonicalSymbol(sym string) string {
	s := strings.ToUpper(strings.TrimSpace(sym))
	switch s {
	case "":
		return ""
	case "BTC", "BTCT", "BTCUSD":
		return "BTCUSDT"
	case "ETH", "ETHUSD":
		return "ETHUSDT"
	case "SOL", "SOLUSD":
		return "SOLUSDT"
	case "BNB", "BNBUSD":
		return "BNBUSDT"
	}
	if strings.HasSuffix(s, "USDT") {
		return s
	}
	if strings.HasSuffix(s, "USD") {
		return strings.TrimSuffix(s, "USD") + "USDT"
	}
	return s + "USDT"
}

// SymbolDecimals returns the declared price precision for a canonical symbol.
func SymbolDecimals(sym string) int32 {
	if d, ok := symbolDecimals[sym]; ok {
		return d
	}
	return defaultDecimals
}

// ScaledPrice converts a price to the symbol's fixed-point representation
// (scaled integer at the declared precision). It returns ok=false for NaN and
// infinite inputs so callers can drop them instead of comparing garbage.
func ScaledPrice(sym string, price float64) (int64, bool) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, false
	}
	scaled := decimal.NewFromFloat(price).Shift(SymbolDecimals(sym)).Round(0)
	return scaled.IntPart(), true
}
