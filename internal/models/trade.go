package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// profitPctKeys are the per-trade field synonyms recognized for the scored
// profit percentage, in lookup order. Values are taken exactly as the engine
// emits them; no unit rescaling is applied.
var profitPctKeys = []string{"profit_pct", "close_profit_pct", "profit_percent", "profit_ratio"}

// RawTrade is one simulated trade as decoded from engine result JSON.
// No field is guaranteed present; every accessor type-checks defensively.
// Trades are consumed immediately after a backtest and never persisted
// individually.
type RawTrade map[string]interface{}

// Float returns the first numeric value found under the given keys.
func (t RawTrade) Float(keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := t[k]
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// Str returns a trimmed, non-empty string value for the key.
func (t RawTrade) Str(key string) (string, bool) {
	v, ok := t[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

// ProfitPct extracts the scored profit percentage via the recognized
// field synonyms. Trades without any of them are unscored.
func (t RawTrade) ProfitPct() (float64, bool) {
	return t.Float(profitPctKeys...)
}

// ProfitAbs extracts the absolute account-currency profit if present.
func (t RawTrade) ProfitAbs() (float64, bool) {
	return t.Float("profit_abs")
}

// Pair returns the traded pair.
func (t RawTrade) Pair() (string, bool) { return t.Str("pair") }

// ExitReason returns the exit reason, falling back to the legacy exit_tag.
func (t RawTrade) ExitReason() (string, bool) {
	if s, ok := t.Str("exit_reason"); ok {
		return s, true
	}
	return t.Str("exit_tag")
}

// EnterTag returns the entry tag, falling back to the legacy buy_tag.
func (t RawTrade) EnterTag() (string, bool) {
	if s, ok := t.Str("enter_tag"); ok {
		return s, true
	}
	return t.Str("buy_tag")
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
