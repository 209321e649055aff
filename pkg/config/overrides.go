package config

import "github.com/spf13/viper"

// Overrides maps command-line flag names to config keys.
type Overrides map[string]string

// Apply copies into v every flag that lookup reports as explicitly set, so
// flags win over the file and the environment only when given.
func (o Overrides) Apply(v *viper.Viper, lookup func(flag string) (value any, set bool)) {
	for flag, key := range o {
		if value, set := lookup(flag); set {
			v.Set(key, value)
		}
	}
}
