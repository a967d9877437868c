package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TOKENBRIDGE_WASM_DEBUG.
const EnvPrefix = "TOKENBRIDGE"

var validate = validator.New()

// Config holds the bridge configuration.
type Config struct {
	LogLevel      string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	ManifestPaths []string      `mapstructure:"manifest_paths"`
	Wasm          WasmConfig    `mapstructure:"wasm"`
	Bridge        BridgeConfig  `mapstructure:"bridge"`
	Exports       ExportsConfig `mapstructure:"exports"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Path of the tokenizer guest binary.
	ModulePath string `mapstructure:"module_path" validate:"required"`
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages" validate:"min=1,max=65536"`
	// Log every guest export call.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory. Empty disables the on-disk cache.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances" validate:"min=1"`
}

// BridgeConfig selects how the host talks to the guest.
type BridgeConfig struct {
	// Structured encoding shared with the guest.
	Encoding string `mapstructure:"encoding" validate:"oneof=msgpack cbor"`
	// Result record layout: detect it, or pin one for a known guest build.
	ResultLayout string `mapstructure:"result_layout" validate:"oneof=auto tagged untagged"`
	// Forward guest stdout/stderr to the log.
	Console bool `mapstructure:"console"`
}

// ExportsConfig names the guest functions the tokenizer client calls.
type ExportsConfig struct {
	Load   string `mapstructure:"load" validate:"required"`
	Unload string `mapstructure:"unload" validate:"required"`
	Encode string `mapstructure:"encode" validate:"required"`
	Decode string `mapstructure:"decode" validate:"required"`
}

// Load reads configuration from defaults, the optional YAML file at
// configPath and TOKENBRIDGE_* environment variables, in increasing
// precedence, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("manifest_paths", []string{"./tokenizers"})

	// Wasm defaults
	v.SetDefault("wasm.module_path", "./tokenizer.wasm")
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)

	// Bridge defaults
	v.SetDefault("bridge.encoding", "msgpack")
	v.SetDefault("bridge.result_layout", "auto")
	v.SetDefault("bridge.console", true)

	v.SetDefault("exports.load", "load_tokenizer")
	v.SetDefault("exports.unload", "unload_tokenizer")
	v.SetDefault("exports.encode", "encode")
	v.SetDefault("exports.decode", "decode")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Bridge.Encoding = strings.ToLower(cfg.Bridge.Encoding)
	cfg.Bridge.ResultLayout = strings.ToLower(cfg.Bridge.ResultLayout)

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
