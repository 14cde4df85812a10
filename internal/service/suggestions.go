package service

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/yourusername/strategy-lab/internal/models"
)

// Suggestion scan bounds.
const (
	defaultSuggestionLimit = 200
	maxSuggestionLimit     = 2000
	maxDataDirFiles        = 4000
)

var timeframePattern = regexp.MustCompile(`^(\d+)([mhdw])$`)

// SuggestionDefaults carries engine config defaults for the submit form.
type SuggestionDefaults struct {
	Fee           *float64 `json:"fee"`
	DryRunWallet  *float64 `json:"dry_run_wallet"`
	MaxOpenTrades *int     `json:"max_open_trades"`
}

// SuggestionsReport merges historical run parameters with engine config
// values and locally downloaded data.
type SuggestionsReport struct {
	Timeranges []string           `json:"timeranges"`
	Timeframes []string           `json:"timeframes"`
	Pairs      []string           `json:"pairs"`
	Warnings   []string           `json:"warnings"`
	Defaults   SuggestionDefaults `json:"defaults"`
}

// Suggestions assembles parameter suggestions for new backtests: recent
// run parameters first, then engine config values, then timeframes seen
// in the data directory. Each source failure lands in Warnings instead of
// failing the call.
func (s *StrategyService) Suggestions(ctx context.Context, limit int) (*SuggestionsReport, error) {
	if limit == 0 {
		limit = defaultSuggestionLimit
	}
	if limit < 1 || limit > maxSuggestionLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", models.ErrInvalidLimit, maxSuggestionLimit)
	}

	report := &SuggestionsReport{
		Timeranges: []string{},
		Timeframes: []string{},
		Pairs:      []string{},
		Warnings:   []string{},
	}
	seenTimeranges := make(map[string]bool)
	seenTimeframes := make(map[string]bool)
	seenPairs := make(map[string]bool)

	hist, err := s.store.GetRecentParamSuggestions(ctx, limit)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("history suggestions unavailable: %v", err))
	} else {
		for _, t := range hist.Timeranges {
			appendUnique(&report.Timeranges, seenTimeranges, t)
		}
		for _, tf := range hist.Timeframes {
			appendUnique(&report.Timeframes, seenTimeframes, tf)
		}
		for _, p := range hist.Pairs {
			appendUnique(&report.Pairs, seenPairs, p)
		}
	}

	if err := s.addConfigSuggestions(report, seenTimeframes, seenPairs); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("bot config suggestions unavailable: %v", err))
	}
	if err := s.addDataDirTimeframes(report, seenTimeframes); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("data dir timeframes unavailable: %v", err))
	}
	return report, nil
}

// addConfigSuggestions folds engine config values into the report: stake
// and fee defaults, the configured timeframe, and every pair whitelist
// the config carries.
func (s *StrategyService) addConfigSuggestions(report *SuggestionsReport, seenTimeframes, seenPairs map[string]bool) error {
	botCfg, err := s.readEngineConfig()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if n, ok := botCfg["dry_run_wallet"].(float64); ok {
		report.Defaults.DryRunWallet = &n
	}
	if n, ok := botCfg["max_open_trades"].(float64); ok {
		v := int(n)
		report.Defaults.MaxOpenTrades = &v
	}
	if tf, ok := botCfg["timeframe"].(string); ok {
		appendUnique(&report.Timeframes, seenTimeframes, tf)
	}

	exchange, _ := botCfg["exchange"].(map[string]interface{})
	appendPairsFromAny(report, seenPairs, exchange["pair_whitelist"])

	if fees, ok := exchange["fees"].(map[string]interface{}); ok {
		if taker, ok := fees["taker"].(float64); ok {
			report.Defaults.Fee = &taker
		} else if maker, ok := fees["maker"].(float64); ok {
			report.Defaults.Fee = &maker
		}
	}

	if pairlists, ok := botCfg["pairlists"].([]interface{}); ok {
		for _, pl := range pairlists {
			if m, ok := pl.(map[string]interface{}); ok {
				appendPairsFromAny(report, seenPairs, m["pair_whitelist"])
			}
		}
	}

	if freqai, ok := botCfg["freqai"].(map[string]interface{}); ok {
		if fp, ok := freqai["feature_parameters"].(map[string]interface{}); ok {
			if tfs, ok := fp["include_timeframes"].([]interface{}); ok {
				for _, it := range tfs {
					if tf, ok := it.(string); ok {
						appendUnique(&report.Timeframes, seenTimeframes, tf)
					}
				}
			}
			appendPairsFromAny(report, seenPairs, fp["include_corr_pairlist"])
		}
	}
	return nil
}

// addDataDirTimeframes scans downloaded market data filenames for their
// timeframe component, shortest interval first. The scan is capped so a
// huge data directory cannot stall the request.
func (s *StrategyService) addDataDirTimeframes(report *SuggestionsReport, seen map[string]bool) error {
	base := s.runner.Config().DataDir
	if base == "" {
		return nil
	}
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil
	}

	found := make(map[string]bool)
	scanned := 0
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if scanned >= maxDataDirFiles {
			return fs.SkipAll
		}
		scanned++
		if tf, ok := timeframeFromFilename(d.Name()); ok {
			found[tf] = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	ordered := make([]string, 0, len(found))
	for tf := range found {
		ordered = append(ordered, tf)
	}
	sort.Slice(ordered, func(i, j int) bool {
		mi, mj := timeframeMinutes(ordered[i]), timeframeMinutes(ordered[j])
		if mi != mj {
			return mi < mj
		}
		return ordered[i] < ordered[j]
	})
	for _, tf := range ordered {
		appendUnique(&report.Timeframes, seen, tf)
	}
	return nil
}

// timeframeFromFilename extracts the timeframe token from market data
// names like BTC_USDT-5m.feather.
func timeframeFromFilename(name string) (string, bool) {
	low := strings.ToLower(name)
	switch {
	case strings.HasSuffix(low, ".feather"),
		strings.HasSuffix(low, ".parquet"),
		strings.HasSuffix(low, ".json"),
		strings.HasSuffix(low, ".jsongz"):
	default:
		return "", false
	}

	_, tail, ok := strings.Cut(name, "-")
	if !ok {
		return "", false
	}
	token, _, _ := strings.Cut(tail, ".")
	fields := strings.Fields(strings.TrimSpace(token))
	if len(fields) == 0 {
		return "", false
	}
	tf := fields[0]
	if !timeframePattern.MatchString(tf) {
		return "", false
	}
	return tf, true
}

// timeframeMinutes ranks a timeframe by its interval length; unparseable
// values sort last.
func timeframeMinutes(tf string) int {
	m := timeframePattern.FindStringSubmatch(strings.TrimSpace(tf))
	if m == nil {
		return math.MaxInt32
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return math.MaxInt32
	}
	switch m[2] {
	case "m":
		return n
	case "h":
		return n * 60
	case "d":
		return n * 1440
	case "w":
		return n * 10080
	}
	return math.MaxInt32
}

// appendPairsFromAny accepts either a JSON list of pairs or a delimited
// string.
func appendPairsFromAny(report *SuggestionsReport, seen map[string]bool, v interface{}) {
	switch val := v.(type) {
	case []interface{}:
		for _, it := range val {
			if p, ok := it.(string); ok {
				appendUnique(&report.Pairs, seen, p)
			}
		}
	case string:
		for _, part := range strings.Split(strings.ReplaceAll(val, ";", ","), ",") {
			appendUnique(&report.Pairs, seen, part)
		}
	}
}

// appendUnique adds a trimmed non-empty value once, preserving order.
func appendUnique(dst *[]string, seen map[string]bool, v string) {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" || seen[trimmed] {
		return
	}
	seen[trimmed] = true
	*dst = append(*dst, trimmed)
}
