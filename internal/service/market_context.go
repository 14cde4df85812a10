package service

import (
	"encoding/json"
	"os"
)

// botConfigKeys are the engine config settings surfaced to the advisor.
var botConfigKeys = []string{"strategy", "timeframe", "stake_currency", "dry_run"}

// BuildMarketContext assembles engine configuration context for advisor
// payloads: the bot's core settings and its pair whitelist. Read failures
// degrade to error notes inside the context, never to a cycle failure.
func (s *StrategyService) BuildMarketContext() map[string]interface{} {
	mctx := make(map[string]interface{})

	botCfg, err := s.readEngineConfig()
	if err != nil {
		mctx["bot_config"] = map[string]interface{}{"bot_config_error": err.Error()}
		mctx["whitelist"] = map[string]interface{}{"whitelist_error": err.Error()}
		return mctx
	}

	picked := make(map[string]interface{})
	for _, key := range botConfigKeys {
		if v, ok := botCfg[key]; ok {
			picked[key] = v
		}
	}
	mctx["bot_config"] = picked

	whitelist := []interface{}{}
	if exchange, ok := botCfg["exchange"].(map[string]interface{}); ok {
		if wl, ok := exchange["pair_whitelist"].([]interface{}); ok {
			whitelist = wl
		}
	}
	mctx["whitelist"] = map[string]interface{}{"whitelist": whitelist}
	return mctx
}

// readEngineConfig decodes the engine's own config file.
func (s *StrategyService) readEngineConfig() (map[string]interface{}, error) {
	raw, err := os.ReadFile(s.runner.Config().ConfigPath)
	if err != nil {
		return nil, err
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
