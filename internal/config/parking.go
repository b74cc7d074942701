package config

import (
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// GateChannel describes one physical gate channel.
type GateChannel struct {
	ID    string `mapstructure:"id"`
	Label string `mapstructure:"label"`
	Exit  bool   `mapstructure:"exit"`
}

// ParkingConfig holds operational parking settings that may change
// without a redeploy (gate channels, notifier ack codes).
type ParkingConfig struct {
	Channels []GateChannel `mapstructure:"channels"`
	// AckCodes are the gate-controller response codes accepted as a
	// payment acknowledgement.
	AckCodes []string `mapstructure:"ackCodes"`
}

func DefaultParkingConfig() ParkingConfig {
	return ParkingConfig{
		Channels: []GateChannel{
			{ID: "1", Label: "salida principal", Exit: true},
		},
		AckCodes: []string{"0", "200", "ok"},
	}
}

// ParkingConfigHolder keeps the current ParkingConfig and hot-reloads it
// when the backing file changes.
type ParkingConfigHolder struct {
	current atomic.Value // holds ParkingConfig
}

func NewParkingConfigHolder() (*ParkingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("parking")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/zkt-sub000/config")
	v.AddConfigPath("/etc/zkt-sub000")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PARKING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultParkingConfig()
		v.SetDefault("parking.channels", defaults.Channels)
		v.SetDefault("parking.ackCodes", defaults.AckCodes)
	}

	holder := &ParkingConfigHolder{}
	if err := holder.reload(v); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		if err := holder.reload(v); err != nil {
			zap.L().Warn("parking config reload failed", zap.Error(err))
		}
	})
	v.WatchConfig()

	return holder, nil
}

// NewStaticParkingConfigHolder wraps a fixed configuration. No file is
// watched; intended for tests and one-shot tools.
func NewStaticParkingConfigHolder(cfg ParkingConfig) *ParkingConfigHolder {
	holder := &ParkingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *ParkingConfigHolder) reload(v *viper.Viper) error {
	var cfg ParkingConfig
	if err := v.UnmarshalKey("parking", &cfg); err != nil {
		return err
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = DefaultParkingConfig().Channels
	}
	if len(cfg.AckCodes) == 0 {
		cfg.AckCodes = DefaultParkingConfig().AckCodes
	}
	h.current.Store(cfg)
	return nil
}

// Current returns the active parking configuration.
func (h *ParkingConfigHolder) Current() ParkingConfig {
	if v, ok := h.current.Load().(ParkingConfig); ok {
		return v
	}
	return DefaultParkingConfig()
}

// ExitChannel returns the first channel flagged as an exit, falling back
// to the first configured channel.
func (h *ParkingConfigHolder) ExitChannel() GateChannel {
	cfg := h.Current()
	for _, ch := range cfg.Channels {
		if ch.Exit {
			return ch
		}
	}
	if len(cfg.Channels) > 0 {
		return cfg.Channels[0]
	}
	return DefaultParkingConfig().Channels[0]
}

// IsAckCode reports whether the gate controller response code counts as
// a payment acknowledgement.
func (h *ParkingConfigHolder) IsAckCode(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return false
	}
	for _, ack := range h.Current().AckCodes {
		if strings.ToLower(strings.TrimSpace(ack)) == code {
			return true
		}
	}
	return false
}
