package scan

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/podguard/internal/model"
)

// PatternConfig holds operator-defined scanner customizations.
type PatternConfig struct {
	ExtraPatterns []ExtraPatternDef `yaml:"extra_patterns"`
}

// ExtraPatternDef defines a custom pattern from config.
type ExtraPatternDef struct {
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Severity string   `yaml:"severity"`
	Regex    string   `yaml:"regex"`
	Context  []string `yaml:"context,omitempty"`
}

// LoadConfig loads scanner config from path. A missing file returns nil
// config (not an error).
func LoadConfig(path string) (*PatternConfig, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scanner config: %w", err)
	}

	var cfg PatternConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse scanner config: %w", err)
	}
	return &cfg, nil
}

// CompilePatterns validates and compiles extra patterns from config.
func CompilePatterns(cfg *PatternConfig) ([]Pattern, error) {
	if cfg == nil {
		return nil, nil
	}

	var patterns []Pattern
	for i, def := range cfg.ExtraPatterns {
		if def.Name == "" {
			return nil, fmt.Errorf("extra_patterns[%d]: name is required", i)
		}
		if def.Regex == "" {
			return nil, fmt.Errorf("extra_patterns[%d]: regex is required", i)
		}
		re, err := regexp.Compile(def.Regex)
		if err != nil {
			return nil, fmt.Errorf("extra_patterns[%d] %q: invalid regex: %w", i, def.Name, err)
		}

		sev := model.Severity(strings.ToUpper(def.Severity))
		if sev == "" {
			sev = model.SeverityMedium
		}
		if _, ok := model.SeverityRank[sev]; !ok {
			return nil, fmt.Errorf("extra_patterns[%d] %q: unknown severity %q", i, def.Name, def.Severity)
		}

		category := def.Category
		if category == "" {
			category = "custom"
		}

		var ctxWords []string
		for _, w := range def.Context {
			ctxWords = append(ctxWords, strings.ToLower(w))
		}

		patterns = append(patterns, Pattern{
			Name:     def.Name,
			Category: category,
			Severity: sev,
			Regex:    re,
			Context:  ctxWords,
		})
	}
	return patterns, nil
}
