package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SegmentationConfig tunes the segmentation engine. It is reloaded at runtime
// when segmentation.yml changes.
type SegmentationConfig struct {
	MaxClusters        int           `mapstructure:"maxClusters"`
	DefaultClusters    int           `mapstructure:"defaultClusters"`
	MaxIterations      int           `mapstructure:"maxIterations"`
	RefreshConcurrency int           `mapstructure:"refreshConcurrency"`
	LockTTL            time.Duration `mapstructure:"lockTTL"`
	Predefined         Predefined    `mapstructure:"predefined"`
}

// Predefined holds thresholds of the built-in rule segments.
type Predefined struct {
	HighValueMinPurchases float64 `mapstructure:"highValueMinPurchases"`
	AtRiskAfterDays       int     `mapstructure:"atRiskAfterDays"`
	NewWithinDays         int     `mapstructure:"newWithinDays"`
	ActiveWithinDays      int     `mapstructure:"activeWithinDays"`
	InactiveAfterDays     int     `mapstructure:"inactiveAfterDays"`
}

func DefaultSegmentationConfig() SegmentationConfig {
	return SegmentationConfig{
		MaxClusters:        10,
		DefaultClusters:    3,
		MaxIterations:      100,
		RefreshConcurrency: 4,
		LockTTL:            2 * time.Minute,
		Predefined: Predefined{
			HighValueMinPurchases: 1000,
			AtRiskAfterDays:       90,
			NewWithinDays:         30,
			ActiveWithinDays:      30,
			InactiveAfterDays:     180,
		},
	}
}

type SegmentationConfigHolder struct {
	current atomic.Value // holds SegmentationConfig
}

// NewStaticSegmentationConfig returns a holder that never reloads.
func NewStaticSegmentationConfig(cfg SegmentationConfig) *SegmentationConfigHolder {
	holder := &SegmentationConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSegmentationConfigHolder(appCfg Config) (*SegmentationConfigHolder, error) {
	v := viper.New()

	if appCfg.SegmentationConfigPath != "" {
		v.SetConfigFile(appCfg.SegmentationConfigPath)
	} else {
		v.SetConfigName("segmentation")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/segmentation")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SEGMENTATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSegmentationConfig()
	v.SetDefault("segmentation.maxClusters", defaults.MaxClusters)
	v.SetDefault("segmentation.defaultClusters", defaults.DefaultClusters)
	v.SetDefault("segmentation.maxIterations", defaults.MaxIterations)
	v.SetDefault("segmentation.refreshConcurrency", defaults.RefreshConcurrency)
	v.SetDefault("segmentation.lockTTL", defaults.LockTTL)
	v.SetDefault("segmentation.predefined.highValueMinPurchases", defaults.Predefined.HighValueMinPurchases)
	v.SetDefault("segmentation.predefined.atRiskAfterDays", defaults.Predefined.AtRiskAfterDays)
	v.SetDefault("segmentation.predefined.newWithinDays", defaults.Predefined.NewWithinDays)
	v.SetDefault("segmentation.predefined.activeWithinDays", defaults.Predefined.ActiveWithinDays)
	v.SetDefault("segmentation.predefined.inactiveAfterDays", defaults.Predefined.InactiveAfterDays)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeSegmentationConfig(v)
	if err != nil {
		return nil, err
	}
	if err := ValidateSegmentationConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticSegmentationConfig(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSegmentationConfig(v)
		if err != nil {
			log.Printf("[segmentation-config] reload failed: %v", err)
			return
		}
		if err := ValidateSegmentationConfig(updated); err != nil {
			log.Printf("[segmentation-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[segmentation-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// decodeSegmentationConfig unmarshals through AllSettings so defaults fill
// nested keys the file leaves out.
func decodeSegmentationConfig(v *viper.Viper) (SegmentationConfig, error) {
	var wrapper struct {
		Segmentation SegmentationConfig `mapstructure:"segmentation"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return SegmentationConfig{}, err
	}
	return wrapper.Segmentation, nil
}

func (h *SegmentationConfigHolder) Get() SegmentationConfig {
	if h == nil {
		return DefaultSegmentationConfig()
	}
	cfg, ok := h.current.Load().(SegmentationConfig)
	if !ok {
		return DefaultSegmentationConfig()
	}
	return cfg
}

func ValidateSegmentationConfig(cfg SegmentationConfig) error {
	if cfg.MaxClusters < 2 {
		return errors.New("segmentation.maxClusters must be at least 2")
	}
	if cfg.DefaultClusters < 2 || cfg.DefaultClusters > cfg.MaxClusters {
		return errors.New("segmentation.defaultClusters must be within [2, maxClusters]")
	}
	if cfg.MaxIterations <= 0 {
		return errors.New("segmentation.maxIterations must be positive")
	}
	if cfg.RefreshConcurrency <= 0 {
		return errors.New("segmentation.refreshConcurrency must be positive")
	}
	if cfg.LockTTL <= 0 {
		return errors.New("segmentation.lockTTL must be positive")
	}
	p := cfg.Predefined
	if p.AtRiskAfterDays <= 0 || p.NewWithinDays <= 0 || p.ActiveWithinDays <= 0 || p.InactiveAfterDays <= 0 {
		return errors.New("segmentation.predefined day windows must be positive")
	}
	return nil
}
