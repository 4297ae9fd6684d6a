// Package config loads the demo CLI's reader connection parameters
// and transaction.SecuritySetting from a config file plus bound
// flags, grounded on kgiusti-go-fdo-server's viper/mapstructure
// cmd/root.go + cmd/config.go pattern: flags are bound into viper,
// an optional file is read on top, then the merged view is decoded
// into typed structs.
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ReaderConfig names which PC/SC reader to open and how to drive it.
type ReaderConfig struct {
	Index         int     `mapstructure:"reader_index"`
	Contactless   bool    `mapstructure:"contactless"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

// SecurityConfig is the on-disk shape of the six §6 security-setting
// options, decoded with mapstructure.Decode and applied onto a fresh
// transaction.SecuritySetting by Apply.
type SecurityConfig struct {
	PinPlainTransmission  bool   `mapstructure:"pin_plain_transmission"`
	PinCipheringKIF       int    `mapstructure:"pin_ciphering_kif"`
	PinCipheringKVC       int    `mapstructure:"pin_ciphering_kvc"`
	MultipleSession       bool   `mapstructure:"multiple_session"`
	DisableReadOnOpen     bool   `mapstructure:"disable_read_on_session_opening"`
	ControlSamResource    string `mapstructure:"control_sam_resource"`
	AuthorizedKeysFile    string `mapstructure:"authorized_keys_file"`
}

// EngineConfig is the merged configuration the demo CLI builds a
// Manager from.
type EngineConfig struct {
	Reader   ReaderConfig   `mapstructure:"reader"`
	Security SecurityConfig `mapstructure:"security"`
}

// Load binds flags, reads configFile if non-empty, and decodes the
// merged view into an EngineConfig. Grounded on go-fdo-server's
// viper.BindPFlags + viper.SetConfigFile + viper.ReadInConfig
// sequence.
func Load(flags *pflag.FlagSet, configFile string) (*EngineConfig, error) {
	v := viper.New()
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", configFile, err)
		}
	}

	var cfg EngineConfig
	if err := mapstructure.Decode(v.AllSettings(), &cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	return &cfg, nil
}
