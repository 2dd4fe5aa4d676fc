package common

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	configPathEnv = "CONFIG_PATH"
	envPrefix     = "DOXEN_"
	configTag     = "key"
)

//go:embed config.default.yaml
var defaultConfig []byte

// ConfigManager loads layered configuration: embedded defaults, an optional
// file at $CONFIG_PATH, then DOXEN_* environment overrides.
type ConfigManager[T any] struct {
	kf *koanf.Koanf
}

func NewConfigManager[T any]() (*ConfigManager[T], error) {
	cm := &ConfigManager[T]{kf: koanf.New(".")}

	if err := cm.kf.Load(rawbytes.Provider(defaultConfig), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cm.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cm.LoadEnv(); err != nil {
		return nil, err
	}
	return cm, nil
}

// LoadFile merges a yaml or json file over the current configuration.
func (cm *ConfigManager[T]) LoadFile(path string) error {
	var parser koanf.Parser = yaml.Parser()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		parser = json.Parser()
	}

	if err := cm.kf.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges DOXEN_A_B_C=value over the key a.b.c. Names are matched
// case-insensitively against keys already loaded so camelCase keys can be
// overridden; anything else is set under its lowercased path, which the
// decoder still matches to the struct field.
func (cm *ConfigManager[T]) LoadEnv() error {
	known := make(map[string]string)
	for _, k := range cm.kf.Keys() {
		known[strings.ToLower(k)] = k
	}

	provider := env.Provider(envPrefix, ".", func(name string) string {
		return envKey(known, name)
	})
	if err := cm.kf.Load(provider, nil); err != nil {
		return fmt.Errorf("failed to load environment config: %w", err)
	}
	return nil
}

func envKey(known map[string]string, name string) string {
	path := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(name, envPrefix), "_", "."))
	if key, ok := known[path]; ok {
		return key
	}
	return path
}

// GetConfig returns the decoded configuration. Decode errors panic since the
// embedded defaults always decode.
func (cm *ConfigManager[T]) GetConfig() T {
	cfg, err := cm.Decode()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (cm *ConfigManager[T]) Decode() (T, error) {
	var cfg T
	err := cm.kf.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: configTag,
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToSliceHook(),
			),
			Result:           &cfg,
			TagName:          configTag,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// stringToSliceHook splits comma separated env values into string slices.
func stringToSliceHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Slice {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
