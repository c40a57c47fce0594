package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/hdsemg/hdsemg-select/internal/layout"
	"github.com/hdsemg/hdsemg-select/internal/quality"
)

// DefaultConfigPath is the path to the canonical selection defaults file.
const DefaultConfigPath = "config/select.defaults.json"

// SelectConfig is the root configuration of the selection tool.
//
// Detection keys have no built-in defaults: ToDetectionSettings refuses to
// run with a key missing. Everything else falls back through the Get*
// accessors, so partial files are safe.
type SelectConfig struct {
	// Detection
	Check50Hz                 *bool    `json:"check_50hz,omitempty"`
	Check60Hz                 *bool    `json:"check_60hz,omitempty"`
	NoiseFreqThreshold        *float64 `json:"noise_freq_threshold,omitempty"`
	NoiseFreqBandHz           *float64 `json:"noise_freq_band_hz,omitempty"`
	ArtifactVarianceThreshold *float64 `json:"artifact_variance_threshold,omitempty"`
	AnalysisWorkers           *int     `json:"analysis_workers,omitempty"`

	// Layout
	ParallelLayout      *string `json:"parallel_layout,omitempty"`      // "rows" or "columns"
	PerpendicularLayout *string `json:"perpendicular_layout,omitempty"` // "rows" or "columns"

	// Electrode catalogue
	CataloguePath    *string `json:"catalogue_path,omitempty"`
	CatalogueURL     *string `json:"catalogue_url,omitempty"`
	CatalogueTimeout *string `json:"catalogue_timeout,omitempty"` // duration string like "5s"

	// Amplitude selection
	AmplitudeThresholdFraction *float64 `json:"amplitude_threshold_fraction,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptySelectConfig returns a SelectConfig with all fields set to nil.
func EmptySelectConfig() *SelectConfig {
	return &SelectConfig{}
}

// DefaultSelectConfig returns the built-in defaults, matching
// config/select.defaults.json.
func DefaultSelectConfig() *SelectConfig {
	return &SelectConfig{
		Check50Hz:                  ptrBool(true),
		Check60Hz:                  ptrBool(true),
		NoiseFreqThreshold:         ptrFloat64(2.0),
		NoiseFreqBandHz:            ptrFloat64(1.0),
		ArtifactVarianceThreshold:  ptrFloat64(1e-9),
		AnalysisWorkers:            ptrInt(0),
		ParallelLayout:             ptrString("columns"),
		PerpendicularLayout:        ptrString("rows"),
		CataloguePath:              ptrString(""),
		CatalogueURL:               ptrString(""),
		CatalogueTimeout:           ptrString("5s"),
		AmplitudeThresholdFraction: ptrFloat64(quality.DefaultAmplitudeFraction),
	}
}

// LoadSelectConfig loads a SelectConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadSelectConfig(path string) (*SelectConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySelectConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *SelectConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/hdsemg-select/ and deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadSelectConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the values that are set are usable.
func (c *SelectConfig) Validate() error {
	if c.NoiseFreqThreshold != nil && !(*c.NoiseFreqThreshold > 0) {
		return fmt.Errorf("noise_freq_threshold must be > 0, got %v", *c.NoiseFreqThreshold)
	}
	if c.NoiseFreqBandHz != nil && !(*c.NoiseFreqBandHz > 0) {
		return fmt.Errorf("noise_freq_band_hz must be > 0, got %v", *c.NoiseFreqBandHz)
	}
	if c.ArtifactVarianceThreshold != nil && !(*c.ArtifactVarianceThreshold >= 0) {
		return fmt.Errorf("artifact_variance_threshold must be >= 0, got %v", *c.ArtifactVarianceThreshold)
	}
	if c.AnalysisWorkers != nil && *c.AnalysisWorkers < 0 {
		return fmt.Errorf("analysis_workers must be non-negative, got %d", *c.AnalysisWorkers)
	}
	if c.ParallelLayout != nil {
		if _, err := layout.ParseMode(*c.ParallelLayout); err != nil {
			return fmt.Errorf("invalid parallel_layout: %w", err)
		}
	}
	if c.PerpendicularLayout != nil {
		if _, err := layout.ParseMode(*c.PerpendicularLayout); err != nil {
			return fmt.Errorf("invalid perpendicular_layout: %w", err)
		}
	}
	if c.CatalogueTimeout != nil && *c.CatalogueTimeout != "" {
		if _, err := time.ParseDuration(*c.CatalogueTimeout); err != nil {
			return fmt.Errorf("invalid catalogue_timeout '%s': %w", *c.CatalogueTimeout, err)
		}
	}
	if c.AmplitudeThresholdFraction != nil {
		f := *c.AmplitudeThresholdFraction
		if !(f > 0) || f > 1 {
			return fmt.Errorf("amplitude_threshold_fraction must be in (0, 1], got %v", f)
		}
	}
	return nil
}

// ToDetectionSettings converts the detection keys into analyzer settings.
// Every detection key must be present.
func (c *SelectConfig) ToDetectionSettings() (quality.Settings, error) {
	missing := func(key string) (quality.Settings, error) {
		return quality.Settings{}, fmt.Errorf("%w: %s is not set", quality.ErrInvalidSettings, key)
	}
	switch {
	case c.Check50Hz == nil:
		return missing("check_50hz")
	case c.Check60Hz == nil:
		return missing("check_60hz")
	case c.NoiseFreqThreshold == nil:
		return missing("noise_freq_threshold")
	case c.NoiseFreqBandHz == nil:
		return missing("noise_freq_band_hz")
	case c.ArtifactVarianceThreshold == nil:
		return missing("artifact_variance_threshold")
	}
	s := quality.Settings{
		Check50Hz:                 *c.Check50Hz,
		Check60Hz:                 *c.Check60Hz,
		NoiseFreqThreshold:        *c.NoiseFreqThreshold,
		NoiseFreqBandHz:           *c.NoiseFreqBandHz,
		ArtifactVarianceThreshold: *c.ArtifactVarianceThreshold,
	}
	if err := s.Validate(); err != nil {
		return quality.Settings{}, err
	}
	return s, nil
}

// LayoutPreferences returns the fiber-to-layout table, falling back to
// layout.DefaultPreferences for unset keys.
func (c *SelectConfig) LayoutPreferences() (layout.Preferences, error) {
	prefs := layout.DefaultPreferences()
	if c.ParallelLayout != nil {
		m, err := layout.ParseMode(*c.ParallelLayout)
		if err != nil {
			return prefs, fmt.Errorf("invalid parallel_layout: %w", err)
		}
		prefs.Parallel = m
	}
	if c.PerpendicularLayout != nil {
		m, err := layout.ParseMode(*c.PerpendicularLayout)
		if err != nil {
			return prefs, fmt.Errorf("invalid perpendicular_layout: %w", err)
		}
		prefs.Perpendicular = m
	}
	return prefs, nil
}

// GetAnalysisWorkers returns the analysis_workers value or the default.
// Zero means one worker per CPU.
func (c *SelectConfig) GetAnalysisWorkers() int {
	if c.AnalysisWorkers == nil {
		return 0
	}
	return *c.AnalysisWorkers
}

// GetCataloguePath returns the catalogue_path value or "".
func (c *SelectConfig) GetCataloguePath() string {
	if c.CataloguePath == nil {
		return ""
	}
	return *c.CataloguePath
}

// GetCatalogueURL returns the catalogue_url value or "".
func (c *SelectConfig) GetCatalogueURL() string {
	if c.CatalogueURL == nil {
		return ""
	}
	return *c.CatalogueURL
}

// GetCatalogueTimeout parses and returns the CatalogueTimeout as a time.Duration.
func (c *SelectConfig) GetCatalogueTimeout() time.Duration {
	if c.CatalogueTimeout == nil || *c.CatalogueTimeout == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.CatalogueTimeout)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}

// GetAmplitudeThresholdFraction returns the amplitude_threshold_fraction value or the default.
func (c *SelectConfig) GetAmplitudeThresholdFraction() float64 {
	if c.AmplitudeThresholdFraction == nil || math.IsNaN(*c.AmplitudeThresholdFraction) {
		return quality.DefaultAmplitudeFraction
	}
	return *c.AmplitudeThresholdFraction
}
