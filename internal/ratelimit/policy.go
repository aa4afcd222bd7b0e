// Package ratelimit provides admission control for the Mediguard API.
package ratelimit

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultMaxRequests   = 60
	defaultWindowSeconds = 60
)

type (
	// EndpointPolicy is the quota applied to one admission bucket.
	EndpointPolicy struct {
		MaxRequests int
		Window      time.Duration
	}

	// PolicySet is the resolved rate-limit configuration: a default
	// policy, exact-path overrides, the client whitelist, and paths
	// exempt from admission control entirely.
	//
	// The set is immutable after construction and safe for concurrent
	// use by all request-handling goroutines.
	PolicySet struct {
		defaultPolicy EndpointPolicy
		overrides     map[string]EndpointPolicy
		whitelist     map[string]struct{}
		exempt        map[string]struct{}
	}

	// policyFile is the YAML shape of the rate_limit section of the
	// Mediguard config file.
	//
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	policyFile struct {
		RateLimit struct {
			Default     endpointPolicyYAML            `yaml:"default"`
			Endpoints   map[string]endpointPolicyYAML `yaml:"endpoints"`
			Whitelist   []string                      `yaml:"whitelist"`
			ExemptPaths []string                      `yaml:"exempt_paths"`
		} `yaml:"rate_limit"`
	}

	//nolint:tagliatelle // snake_case is intentional for YAML config files
	endpointPolicyYAML struct {
		MaxRequests   int `yaml:"max_requests"`
		WindowSeconds int `yaml:"window_seconds"`
	}
)

// DefaultPolicy returns the quota applied when no exact-path override
// matches: 60 requests per rolling 60 seconds.
func DefaultPolicy() EndpointPolicy {
	return EndpointPolicy{
		MaxRequests: defaultMaxRequests,
		Window:      defaultWindowSeconds * time.Second,
	}
}

// DefaultExemptPaths lists the paths exempt from admission control by
// default: health probes must stay reachable under load.
func DefaultExemptPaths() []string {
	return []string{"/ping", "/health"}
}

// NewPolicySet builds an immutable policy set from a default policy,
// per-path overrides, a client whitelist and exempt paths. A nil exempt
// list means the default health-probe exemptions.
func NewPolicySet(def EndpointPolicy, overrides map[string]EndpointPolicy, whitelist, exemptPaths []string) *PolicySet {
	if def.MaxRequests <= 0 || def.Window <= 0 {
		def = DefaultPolicy()
	}

	ov := make(map[string]EndpointPolicy, len(overrides))

	for path, p := range overrides {
		if p.MaxRequests > 0 && p.Window > 0 {
			ov[path] = p
		}
	}

	wl := make(map[string]struct{}, len(whitelist))
	for _, c := range whitelist {
		wl[c] = struct{}{}
	}

	if exemptPaths == nil {
		exemptPaths = DefaultExemptPaths()
	}

	ex := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		ex[p] = struct{}{}
	}

	return &PolicySet{
		defaultPolicy: def,
		overrides:     ov,
		whitelist:     wl,
		exempt:        ex,
	}
}

// DefaultPolicySet returns a policy set with the default quota, no
// overrides, an empty whitelist and the default exempt paths.
func DefaultPolicySet() *PolicySet {
	return NewPolicySet(DefaultPolicy(), nil, nil, nil)
}

// Resolve returns the policy for an endpoint path: an exact-path override
// if one exists, the default policy otherwise.
func (ps *PolicySet) Resolve(path string) EndpointPolicy {
	if p, ok := ps.overrides[path]; ok {
		return p
	}

	return ps.defaultPolicy
}

// Whitelisted reports whether the client bypasses admission control
// entirely. Whitelisted clients never allocate a bucket.
func (ps *PolicySet) Whitelisted(client string) bool {
	_, ok := ps.whitelist[client]

	return ok
}

// Exempt reports whether the path bypasses admission control for all
// clients (health probes).
func (ps *PolicySet) Exempt(path string) bool {
	_, ok := ps.exempt[path]

	return ok
}

// LoadPolicySet loads the rate_limit section from a YAML config file.
//
// Behavior mirrors the rest of the Mediguard config loading:
//   - Missing file returns the default policy set, not an error.
//   - Invalid YAML logs a warning and returns the default policy set.
//   - Overrides with non-positive values are dropped.
//
// This graceful degradation keeps the server bootable with quota
// enforcement at safe defaults even when the policy file is broken.
func LoadPolicySet(path string) (*PolicySet, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Rate policy file not found, using defaults",
				slog.String("path", path))

			return DefaultPolicySet(), nil
		}

		slog.Warn("Failed to read rate policy file, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return DefaultPolicySet(), nil
	}

	var file policyFile

	if err := yaml.Unmarshal(data, &file); err != nil {
		slog.Warn("Failed to parse rate policy file, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return DefaultPolicySet(), nil
	}

	def := file.RateLimit.Default.toPolicy()

	overrides := make(map[string]EndpointPolicy, len(file.RateLimit.Endpoints))
	for path, p := range file.RateLimit.Endpoints {
		overrides[path] = p.toPolicy()
	}

	return NewPolicySet(def, overrides, file.RateLimit.Whitelist, file.RateLimit.ExemptPaths), nil
}

func (p endpointPolicyYAML) toPolicy() EndpointPolicy {
	return EndpointPolicy{
		MaxRequests: p.MaxRequests,
		Window:      time.Duration(p.WindowSeconds) * time.Second,
	}
}
