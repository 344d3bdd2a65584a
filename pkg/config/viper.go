package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Viper keys for process-level settings. The profile file itself is parsed
// by Load/Parse; viper only handles the scalar settings that may also come
// from the environment.
const (
	KeyListen     = "listen"
	KeyConfigPath = "config"
	KeyDebug      = "debug"
)

// InitViper creates a *viper.Viper with defaults registered and environment
// variables bound under the UNILLM_ prefix.
//
// Setting precedence (highest to lowest):
//  1. CLI flags (once bound via BindPFlag in the command)
//  2. Environment variables (UNILLM_LISTEN, UNILLM_CONFIG, UNILLM_DEBUG)
//  3. Defaults from NewDefaultConfig()
func InitViper() *viper.Viper {
	v := viper.New()

	d := NewDefaultConfig()
	v.SetDefault(KeyListen, d.Listen)
	v.SetDefault(KeyConfigPath, "config.toml")
	v.SetDefault(KeyDebug, false)

	v.SetEnvPrefix("UNILLM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}
