package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages runtime toggles for optional engine behaviour.
// Core lifecycle operations are never behind a flag.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	learnerOverrides map[string]map[string]bool // learnerID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100). Learners are bucketed by a hash of their id.
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// FeatureVerificationCache puts Redis in front of public verification.
	FeatureVerificationCache = "verification_cache"

	// FeatureCertificateEvents publishes lifecycle events.
	FeatureCertificateEvents = "certificate_events"

	// FeatureCertificateRendering enables certificate downloads.
	FeatureCertificateRendering = "certificate_rendering"

	// FeatureAutoIssue issues the certificate when a course is completed.
	// Requires certificate_events.
	FeatureAutoIssue = "auto_issue"
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	ff.loadFromEnvironment()
	return ff
}

// NewFeatureFlags returns the defaults without reading the environment.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		learnerOverrides: make(map[string]map[string]bool),
	}
	ff.initializeDefaults()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureVerificationCache] = &Feature{
		Name:           FeatureVerificationCache,
		Description:    "Cache verified certificates in Redis",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureCertificateEvents] = &Feature{
		Name:           FeatureCertificateEvents,
		Description:    "Publish enrollment and certificate events",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureCertificateRendering] = &Feature{
		Name:           FeatureCertificateRendering,
		Description:    "Render downloadable certificate images",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureAutoIssue] = &Feature{
		Name:           FeatureAutoIssue,
		Description:    "Issue certificates on course completion",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_VERIFICATION_CACHE=false
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}

		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts a feature name to its environment key.
// "verification_cache" -> "FEATURE_VERIFICATION_CACHE"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// Enabled reports whether a feature is globally on. Partial rollouts count as on.
func (ff *FeatureFlags) Enabled(featureName string) bool {
	return ff.IsEnabledFor(featureName, "")
}

// IsEnabledFor checks if a feature is enabled for a learner. An empty
// learnerID skips per-learner bucketing.
func (ff *FeatureFlags) IsEnabledFor(featureName, learnerID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if learnerID != "" {
		if overrides, ok := ff.learnerOverrides[learnerID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	if feature.RolloutPercent < 100 && learnerID != "" {
		return isInRollout(learnerID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout buckets a learner consistently per feature.
func isInRollout(learnerID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(learnerID))
	return int(h.Sum32()%100) < percent
}

// SetLearnerOverride sets a feature override for a specific learner.
func (ff *FeatureFlags) SetLearnerOverride(learnerID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.learnerOverrides[learnerID]; !ok {
		ff.learnerOverrides[learnerID] = make(map[string]bool)
	}
	ff.learnerOverrides[learnerID][featureName] = enabled
}

// ClearLearnerOverrides removes all overrides for a learner.
func (ff *FeatureFlags) ClearLearnerOverrides(learnerID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.learnerOverrides, learnerID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
