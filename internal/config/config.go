// Package config loads scheme.Config/cluster.Config trees from a file or
// the environment, the way nabbar-golib/viper wraps spf13/viper for its
// components: one Viper instance per Loader, decoded with mapstructure
// tags already present on the target structs.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader wraps a configured *viper.Viper, bound to one file plus an
// environment-variable prefix/override layer.
type Loader struct {
	v *viper.Viper
}

// New creates a Loader reading path (any format viper supports: yaml, json,
// toml...) with environment variables under envPrefix taking precedence
// (envPrefix + "_" + upper-cased, dot-to-underscore key).
func New(path, envPrefix string) (*Loader, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return &Loader{v: v}, nil
}

// Unmarshal decodes the key sub-tree into out (a pointer to a
// mapstructure-tagged struct, e.g. scheme.Config or cluster.Config). An
// empty key decodes the whole document.
func (l *Loader) Unmarshal(key string, out interface{}) error {
	if key == "" {
		return l.v.Unmarshal(out)
	}
	return l.v.UnmarshalKey(key, out)
}

// Raw exposes the underlying *viper.Viper for callers needing Get/Set/Watch
// beyond what Unmarshal offers.
func (l *Loader) Raw() *viper.Viper {
	return l.v
}
