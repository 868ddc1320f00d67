// Package config loads runtime settings from YAML or TOML files.
package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/naoina/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/oakvm/internal/attach"
	"github.com/roach88/oakvm/internal/gc"
	"github.com/roach88/oakvm/internal/oops"
)

// Config is the complete runtime configuration.
type Config struct {
	VM      VMConfig      `yaml:"vm" toml:"vm"`
	Attach  AttachConfig  `yaml:"attach" toml:"attach"`
	Journal JournalConfig `yaml:"journal" toml:"journal"`
}

// VMConfig configures the universe and its heap.
type VMConfig struct {
	CompressedOops      bool  `yaml:"compressed_oops" toml:"compressed_oops"`
	MaxArrayLength      int   `yaml:"max_array_length" toml:"max_array_length"`
	HeapCapacity        int64 `yaml:"heap_capacity" toml:"heap_capacity"`
	MetaspaceLimit      int64 `yaml:"metaspace_limit" toml:"metaspace_limit"`
	SubtypeCacheSize    int   `yaml:"subtype_cache_size" toml:"subtype_cache_size"`
	MaxElementPrintSize int   `yaml:"max_element_print_size" toml:"max_element_print_size"`
}

// AttachConfig configures the attach listener.
type AttachConfig struct {
	PipeDir      string   `yaml:"pipe_dir" toml:"pipe_dir"`
	InitRetries  int      `yaml:"init_retries" toml:"init_retries"`
	InitInterval Duration `yaml:"init_interval" toml:"init_interval"`
}

// JournalConfig configures the event journal.
type JournalConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Duration is a time.Duration written as "1s", "250ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		VM: VMConfig{
			CompressedOops:      true,
			MaxArrayLength:      oops.DefaultMaxArrayLength,
			HeapCapacity:        gc.DefaultCapacity,
			SubtypeCacheSize:    oops.DefaultSubtypeCacheSize,
			MaxElementPrintSize: oops.DefaultMaxElementPrintSize,
		},
		Attach: AttachConfig{
			PipeDir:      filepath.Join(os.TempDir(), "oakvm"),
			InitRetries:  attach.DefaultInitRetries,
			InitInterval: Duration(attach.DefaultInitInterval),
		},
		Journal: JournalConfig{
			Path: "oakvm.db",
		},
	}
}

// Keys in TOML files use the snake_case field names and unknown keys are
// rejected.
var tomlSettings = toml.Config{
	NormFieldName: toml.DefaultConfig.NormFieldName,
	FieldToKey:    toml.DefaultConfig.FieldToKey,
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// Load reads path over the defaults. The format is chosen by extension:
// .yaml, .yml or .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case ".toml":
		err := tomlSettings.NewDecoder(bufio.NewReader(bytes.NewReader(data))).Decode(cfg)
		if _, ok := err.(*toml.LineError); ok {
			err = errors.New(path + ", " + err.Error())
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.VM.MaxArrayLength < 0 {
		errs = append(errs, fmt.Errorf("vm.max_array_length must not be negative"))
	}
	if c.VM.HeapCapacity < 0 {
		errs = append(errs, fmt.Errorf("vm.heap_capacity must not be negative"))
	}
	if c.VM.MetaspaceLimit < 0 {
		errs = append(errs, fmt.Errorf("vm.metaspace_limit must not be negative"))
	}
	if c.VM.SubtypeCacheSize < 1 {
		errs = append(errs, fmt.Errorf("vm.subtype_cache_size must be positive"))
	}
	if c.VM.MaxElementPrintSize < 0 {
		errs = append(errs, fmt.Errorf("vm.max_element_print_size must not be negative"))
	}
	if c.Attach.PipeDir == "" {
		errs = append(errs, fmt.Errorf("attach.pipe_dir is required"))
	}
	if c.Attach.InitRetries < 0 {
		errs = append(errs, fmt.Errorf("attach.init_retries must not be negative"))
	}
	if c.Attach.InitInterval < 0 {
		errs = append(errs, fmt.Errorf("attach.init_interval must not be negative"))
	}
	return errors.Join(errs...)
}

// HeapOptions returns the heap settings.
func (c *Config) HeapOptions(logger *slog.Logger) []gc.Option {
	return []gc.Option{
		gc.WithCompressedOops(c.VM.CompressedOops),
		gc.WithCapacity(c.VM.HeapCapacity),
		gc.WithLogger(logger),
	}
}

// UniverseOptions returns the universe settings.
func (c *Config) UniverseOptions(logger *slog.Logger) []oops.Option {
	return []oops.Option{
		oops.WithMaxArrayLength(c.VM.MaxArrayLength),
		oops.WithMetaspaceLimit(c.VM.MetaspaceLimit),
		oops.WithSubtypeCacheSize(c.VM.SubtypeCacheSize),
		oops.WithMaxElementPrintSize(c.VM.MaxElementPrintSize),
		oops.WithLogger(logger),
	}
}

// ListenerOptions returns the attach listener settings.
func (c *Config) ListenerOptions(logger *slog.Logger) []attach.ListenerOption {
	return []attach.ListenerOption{
		attach.WithInitRetries(c.Attach.InitRetries, time.Duration(c.Attach.InitInterval)),
		attach.WithListenerLogger(logger),
	}
}

// GatewayPath returns the control socket path inside the pipe directory.
func (c *Config) GatewayPath() string {
	return filepath.Join(c.Attach.PipeDir, "attach.sock")
}
