package scanner

import (
	"fmt"
	"os"
	"regexp"

	"github.com/pelletier/go-toml/v2"
)

type rulesConfig struct {
	Rules []struct {
		ID string `toml:"id"`
	} `toml:"rules"`
	Extend struct {
		DisabledRules []string `toml:"disabledRules"`
	} `toml:"extend"`
}

// AllowedRules collects the rule IDs from the given scanner configuration
// files whose ID matches pattern, minus any rules the configs disable.
// An empty pattern returns nil, meaning no rule restriction.
func AllowedRules(configPaths []string, pattern string) ([]string, error) {
	if pattern == "" {
		return nil, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("rules filter: %w", err)
	}

	var ids []string
	disabled := make(map[string]bool)
	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		var cfg rulesConfig
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}

		for _, rule := range cfg.Rules {
			if re.MatchString(rule.ID) {
				ids = append(ids, rule.ID)
			}
		}
		for _, id := range cfg.Extend.DisabledRules {
			disabled[id] = true
		}
	}

	allowed := make([]string, 0, len(ids))
	for _, id := range ids {
		if !disabled[id] {
			allowed = append(allowed, id)
		}
	}
	return allowed, nil
}
