package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Option func(v *viper.Viper)

// WithEnvPrefix namespaces environment overrides: with prefix QUIZBOX the key
// game.maxcycles is read from QUIZBOX_GAME_MAXCYCLES.
func WithEnvPrefix(prefix string) Option {
	return func(v *viper.Viper) {
		v.SetEnvPrefix(prefix)
	}
}

// Load reads file into config, which must be a pointer to a struct. The values
// already in config are the defaults. Environment variables override both, with
// "." in the key replaced by "_". Comma separated values decode into slices and
// strings like "15s" into durations.
func Load(file string, config any, opts ...Option) error {
	v := viper.New()

	defaults := make(map[string]any)
	if err := flatten("", config, defaults); err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}

	// Every leaf is registered so AutomaticEnv sees keys the file never sets.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	for _, opt := range opts {
		opt(v)
	}

	v.SetConfigFile(file)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config from file %s: %v", file, err)
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(config, hook); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}

// flatten decodes in into out keyed by dotted lower case paths such as
// redis.leaderboard.pass. Nested structs and maps are walked down to their
// leaves.
func flatten(prefix string, in any, out map[string]any) error {
	m := make(map[string]any)
	if err := mapstructure.Decode(in, &m); err != nil {
		return err
	}

	for k, value := range m {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}

		if isNested(value) {
			if err := flatten(key, value, out); err != nil {
				return err
			}
			continue
		}

		out[key] = value
	}

	return nil
}

func isNested(value any) bool {
	if value == nil {
		return false
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		return true
	case reflect.Map:
		return rv.Type().Key().Kind() == reflect.String
	default:
		return false
	}
}
