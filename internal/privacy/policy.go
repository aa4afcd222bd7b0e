// Package privacy implements PII redaction for audit output.
//
// The package is organized around a single canonical Policy consumed by
// both field-level and free-text redaction, so the sensitive-field list
// and the PII patterns exist in exactly one place.
package privacy

import (
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"regexp"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

// MaskToken replaces fully masked values. It deliberately matches none
// of the PII patterns, which keeps redaction idempotent.
const MaskToken = "***masked***"

// hashDigestHexLen is the length of the hex prefix kept from the digest.
const hashDigestHexLen = 16

// RuleKind identifies the syntactic shape a free-text rule targets.
type RuleKind string

// Built-in rule kinds. The shapes are disjoint, so the order rules are
// applied in does not change the final masked set.
const (
	KindPhone      RuleKind = "phone"
	KindNationalID RuleKind = "national_id"
	KindEmail      RuleKind = "email"
)

// hashedValueRe matches values this package has already hashed. Redacting
// a document twice must not re-hash the digest.
var hashedValueRe = regexp.MustCompile(`^hash:[0-9a-f]{16}$`)

type (
	// RedactionRule is one compiled free-text pattern.
	RedactionRule struct {
		Kind    RuleKind
		Pattern *regexp.Regexp
	}

	// Policy is the canonical redaction configuration: the free-text
	// rules plus the field names that are redacted by name rather than
	// by pattern.
	//
	// Immutable after construction and safe for concurrent use.
	Policy struct {
		rules []RedactionRule

		// sensitive fields are replaced with MaskToken.
		sensitive map[string]struct{}

		// hashed fields are replaced with a deterministic digest so
		// equal inputs remain correlatable without being readable.
		hashed map[string]struct{}
	}

	// policyFileYAML is the YAML shape of the privacy section of the
	// Mediguard config file.
	//
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	policyFileYAML struct {
		Privacy struct {
			SensitiveFields []string   `yaml:"sensitive_fields"`
			HashedFields    []string   `yaml:"hashed_fields"`
			Rules           []ruleYAML `yaml:"rules"`
		} `yaml:"privacy"`
	}

	ruleYAML struct {
		Kind    string `yaml:"kind"`
		Pattern string `yaml:"pattern"`
	}
)

// DefaultRules returns the compiled built-in free-text patterns:
// Taiwan-style mobile numbers, national ID numbers, and email addresses.
func DefaultRules() []RedactionRule {
	return []RedactionRule{
		{Kind: KindPhone, Pattern: regexp.MustCompile(`\b09\d{2}-?\d{3}-?\d{3}\b`)},
		{Kind: KindNationalID, Pattern: regexp.MustCompile(`\b[A-Z][12]\d{8}\b`)},
		{Kind: KindEmail, Pattern: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	}
}

// DefaultSensitiveFields lists the field names masked by default.
func DefaultSensitiveFields() []string {
	return []string{
		"name", "phone", "mobile", "national_id", "id_number",
		"email", "address", "birthday",
	}
}

// DefaultHashedFields lists the field names hashed by default. These are
// medical free-text fields where equal values must stay correlatable
// across audit records.
func DefaultHashedFields() []string {
	return []string{"symptoms", "symptom", "diagnosis", "medical_history"}
}

// NewPolicy builds a policy from explicit field lists and rules. Nil or
// empty arguments fall back to the defaults.
func NewPolicy(sensitive, hashed []string, rules []RedactionRule) *Policy {
	if len(sensitive) == 0 {
		sensitive = DefaultSensitiveFields()
	}

	if len(hashed) == 0 {
		hashed = DefaultHashedFields()
	}

	if len(rules) == 0 {
		rules = DefaultRules()
	}

	return &Policy{
		rules:     rules,
		sensitive: toSet(sensitive),
		hashed:    toSet(hashed),
	}
}

// DefaultPolicy returns the built-in redaction policy.
func DefaultPolicy() *Policy {
	return NewPolicy(nil, nil, nil)
}

// LoadPolicy loads the privacy section from a YAML config file.
//
// Missing file or invalid YAML degrade to the default policy rather than
// failing; a broken config file must never weaken to NO redaction, and
// the defaults are the strictest configuration we have.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Privacy policy file not found, using defaults",
				slog.String("path", path))

			return DefaultPolicy(), nil
		}

		slog.Warn("Failed to read privacy policy file, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return DefaultPolicy(), nil
	}

	var file policyFileYAML

	if err := yaml.Unmarshal(data, &file); err != nil {
		slog.Warn("Failed to parse privacy policy file, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return DefaultPolicy(), nil
	}

	rules := make([]RedactionRule, 0, len(file.Privacy.Rules))

	for _, r := range file.Privacy.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			slog.Warn("Skipping invalid privacy rule pattern",
				slog.String("kind", r.Kind),
				slog.String("error", err.Error()))

			continue
		}

		rules = append(rules, RedactionRule{Kind: RuleKind(r.Kind), Pattern: re})
	}

	return NewPolicy(file.Privacy.SensitiveFields, file.Privacy.HashedFields, rules), nil
}

// Sensitive reports whether the field name requires full masking.
func (p *Policy) Sensitive(field string) bool {
	_, ok := p.sensitive[field]

	return ok
}

// Hashed reports whether the field name requires digest replacement.
func (p *Policy) Hashed(field string) bool {
	_, ok := p.hashed[field]

	return ok
}

// Rules returns the compiled free-text rules.
func (p *Policy) Rules() []RedactionRule {
	return p.rules
}

// HashValue produces the deterministic one-way replacement for a hashed
// field: "hash:" plus the first 16 hex characters of the BLAKE2b-256
// digest. Equal inputs always produce equal output, and the original
// text is not recoverable.
func HashValue(value string) string {
	sum := blake2b.Sum256([]byte(value))

	return "hash:" + hex.EncodeToString(sum[:])[:hashDigestHexLen]
}

// alreadyHashed reports whether a value is an output of HashValue, so a
// second redaction pass leaves it untouched.
func alreadyHashed(value string) bool {
	return hashedValueRe.MatchString(value)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}

	return set
}
