package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ThresholdConfig tunes one ratio-based detection check.
type ThresholdConfig struct {
	Base                 float64 `mapstructure:"base"`
	Max                  float64 `mapstructure:"max"`
	VolatilityMultiplier float64 `mapstructure:"volatilityMultiplier"`
}

// DetectionConfig tunes the anomaly detection engine.
type DetectionConfig struct {
	LookbackDays       int     `mapstructure:"lookbackDays"`
	BaselineWindow     int     `mapstructure:"baselineWindow"`
	MinHistoryPoints   int     `mapstructure:"minHistoryPoints"`
	MinDailyRows       int     `mapstructure:"minDailyRows"`
	MinBaselineRevenue float64 `mapstructure:"minBaselineRevenue"`

	// MinQualityScore is the floor below which a file's quality score
	// raises a warning. Zero disables the check.
	MinQualityScore float64 `mapstructure:"minQualityScore"`

	RevenueDrop  ThresholdConfig `mapstructure:"revenueDrop"`
	TrafficSpike ThresholdConfig `mapstructure:"trafficSpike"`

	ZScoreThreshold     float64 `mapstructure:"zScoreThreshold"`
	ZScoreHighThreshold float64 `mapstructure:"zScoreHighThreshold"`
}

func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		LookbackDays:       45,
		BaselineWindow:     7,
		MinHistoryPoints:   4,
		MinDailyRows:       5,
		MinBaselineRevenue: 10,
		MinQualityScore:    50,
		RevenueDrop: ThresholdConfig{
			Base:                 0.5,
			Max:                  0.9,
			VolatilityMultiplier: 0.5,
		},
		TrafficSpike: ThresholdConfig{
			Base:                 1.0,
			Max:                  3.0,
			VolatilityMultiplier: 1.0,
		},
		ZScoreThreshold:     3,
		ZScoreHighThreshold: 4,
	}
}

// DetectionConfigHolder serves the current tuning snapshot to detection runs.
type DetectionConfigHolder struct {
	current atomic.Value // holds DetectionConfig
}

// NewDetectionConfigHolder loads detection tuning from detection.yml with hot reload.
func NewDetectionConfigHolder() (*DetectionConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("detection")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/roamsight/config")
	v.AddConfigPath("/etc/roamsight")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ROAMSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDetectionConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("detection", defaults)
	}

	cfg := defaults
	if err := v.UnmarshalKey("detection", &cfg); err != nil {
		return nil, err
	}
	if err := validateDetectionConfig(cfg); err != nil {
		return nil, err
	}

	holder := &DetectionConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultDetectionConfig()
		if err := v.UnmarshalKey("detection", &updated); err != nil {
			log.Printf("[detection-config] reload failed: %v", err)
			return
		}
		if err := validateDetectionConfig(updated); err != nil {
			log.Printf("[detection-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[detection-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *DetectionConfigHolder) Get() DetectionConfig {
	return h.current.Load().(DetectionConfig)
}

// NewStaticDetectionConfigHolder pins the holder to a fixed config with no
// file watching. Used by tests and one-shot tools.
func NewStaticDetectionConfigHolder(cfg DetectionConfig) *DetectionConfigHolder {
	holder := &DetectionConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateDetectionConfig(cfg DetectionConfig) error {
	if cfg.BaselineWindow <= 0 || cfg.LookbackDays <= 0 {
		return errors.New("detection.baselineWindow and detection.lookbackDays must be positive")
	}
	if cfg.MinHistoryPoints < 2 {
		return errors.New("detection.minHistoryPoints must be at least 2")
	}
	if cfg.RevenueDrop.Base <= 0 || cfg.RevenueDrop.Max < cfg.RevenueDrop.Base {
		return errors.New("detection.revenueDrop thresholds are inconsistent")
	}
	if cfg.TrafficSpike.Base <= 0 || cfg.TrafficSpike.Max < cfg.TrafficSpike.Base {
		return errors.New("detection.trafficSpike thresholds are inconsistent")
	}
	if cfg.ZScoreThreshold <= 0 || cfg.ZScoreHighThreshold < cfg.ZScoreThreshold {
		return errors.New("detection.zScore thresholds are inconsistent")
	}
	if cfg.MinQualityScore < 0 || cfg.MinQualityScore > 100 {
		return errors.New("detection.minQualityScore must be within [0, 100]")
	}
	return nil
}
