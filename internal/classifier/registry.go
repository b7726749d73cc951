package classifier

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/dativo-io/veil/internal/entity"
	"github.com/dativo-io/veil/patterns"
)

// RecognizerFile is the top-level YAML structure for a recognizer config file.
// Mirrors Presidio's recognizer registry YAML format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig mirrors Presidio's YAML recognizer schema with veil extensions.
type RecognizerConfig struct {
	Name               string            `yaml:"name" json:"name"`
	SupportedEntity    string            `yaml:"supported_entity" json:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty" json:"supported_languages,omitempty"`
	// veil extensions (safe to include, Presidio ignores unknown fields)
	Validate    string `yaml:"validate,omitempty" json:"validate,omitempty"` // "luhn" or "ip_octets"
	Sensitivity int    `yaml:"sensitivity,omitempty" json:"sensitivity,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
}

// LanguageContext holds context words for a specific language.
type LanguageContext struct {
	Language string   `yaml:"language" json:"language"`
	Context  []string `yaml:"context,omitempty" json:"context,omitempty"`
}

// isEnabled returns true if the recognizer is enabled (defaults to true when nil).
func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// contextWords returns the context words for the given language.
func (r *RecognizerConfig) contextWords(language string) []string {
	for _, lc := range r.SupportedLanguages {
		if lc.Language == language {
			return lc.Context
		}
	}
	return nil
}

// ParseRecognizerFile parses recognizer YAML bytes into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing overlay config as a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// DefaultRecognizers returns the built-in PII recognizers parsed from the
// embedded pii_default.yaml file. This is the first layer in the merge chain.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIDefaultYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded PII patterns: %w", err)
	}
	return rf.Recognizers, nil
}

// MergeRecognizers performs a layered merge: defaults first, then overlays.
// Later layers override earlier ones by matching on the recognizer Name
// field. New recognizers are appended.
func MergeRecognizers(layers ...[]*RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if rc == nil {
				continue
			}
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = *rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, *rc)
			}
		}
	}

	return merged
}

// toPtrSlice converts []RecognizerConfig to []*RecognizerConfig for MergeRecognizers.
func toPtrSlice(configs []RecognizerConfig) []*RecognizerConfig {
	ptrs := make([]*RecognizerConfig, len(configs))
	for i := range configs {
		ptrs[i] = &configs[i]
	}
	return ptrs
}

// Pattern represents a compiled, ready-to-use PII detection pattern.
type Pattern struct {
	Name           string
	Type           entity.Type
	Pattern        *regexp.Regexp
	Score          float64
	ContextWords   []string
	ValidateLuhn   bool
	ValidateOctets bool
	Sensitivity    int
}

// CompilePatterns converts a list of recognizer configs into the compiled
// []Pattern slice used by the Scanner at runtime. Disabled recognizers are
// skipped. Each regex pattern in a recognizer produces one Pattern entry,
// with the supported entity mapped onto the closed taxonomy (unknown
// entities land in the OTHER bucket).
func CompilePatterns(recognizers []RecognizerConfig, language string) ([]Pattern, error) {
	var compiled []Pattern

	for _, rec := range recognizers {
		if !rec.isEnabled() {
			continue
		}
		ctxWords := rec.contextWords(language)
		for _, p := range rec.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			compiled = append(compiled, Pattern{
				Name:           p.Name,
				Type:           entity.MapLabelLoose(rec.SupportedEntity),
				Pattern:        re,
				Score:          p.Score,
				ContextWords:   ctxWords,
				ValidateLuhn:   rec.Validate == "luhn",
				ValidateOctets: rec.Validate == "ip_octets",
				Sensitivity:    rec.Sensitivity,
			})
		}
	}

	return compiled, nil
}

// FilterByEntities applies enabled/disabled entity filters to a recognizer list.
// If enabledEntities is non-empty, only recognizers with matching supported_entity
// are kept (whitelist). Then any recognizer in disabledEntities is removed (blacklist).
func FilterByEntities(recognizers []RecognizerConfig, enabledEntities, disabledEntities []string) []RecognizerConfig {
	result := recognizers

	if len(enabledEntities) > 0 {
		allowed := make(map[string]bool, len(enabledEntities))
		for _, e := range enabledEntities {
			allowed[e] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if allowed[r.SupportedEntity] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	if len(disabledEntities) > 0 {
		blocked := make(map[string]bool, len(disabledEntities))
		for _, e := range disabledEntities {
			blocked[e] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if !blocked[r.SupportedEntity] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	return result
}
