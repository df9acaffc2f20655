// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package backend selects a device from a short textual description.
//
// A description is a backend name optionally followed by options:
//
//	naive
//	naive:seed=42
//	cpu:workers=4,min_chunk=2048,seed=7
//	webgpu:adapter=0
//
// The same settings can be kept in a YAML file:
//
//	backend: cpu
//	seed: 7
//	workers: 4
//
// FromEnv reads GRADCORE_DEVICE_CONFIG (a YAML file) or GRADCORE_DEVICE (a
// description) and falls back to the naive backend.
package backend

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/born-ml/gradcore/backend/cpu"
	"github.com/born-ml/gradcore/backend/naive"
	"github.com/born-ml/gradcore/backend/webgpu"
	"github.com/born-ml/gradcore/tensor"
)

// Environment variables read by FromEnv.
const (
	EnvDevice       = "GRADCORE_DEVICE"
	EnvDeviceConfig = "GRADCORE_DEVICE_CONFIG"
)

// Backend names.
const (
	Naive  = "naive"
	CPU    = "cpu"
	WebGPU = "webgpu"
)

// Config describes a device to create.
//
// Zero values select backend defaults. Seed is optional; without it the
// device picks its own seed.
type Config struct {
	Backend  string  `yaml:"backend"`
	Seed     *uint64 `yaml:"seed,omitempty"`
	Workers  int     `yaml:"workers,omitempty"`
	MinChunk int     `yaml:"min_chunk,omitempty"`
	Adapter  int     `yaml:"adapter,omitempty"`
}

// ParseConfig parses a description such as "cpu:workers=4,seed=7".
// An empty description selects the naive backend.
func ParseConfig(desc string) (Config, error) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return Config{Backend: Naive}, nil
	}
	name, rest, _ := strings.Cut(desc, ":")
	cfg := Config{Backend: strings.ToLower(strings.TrimSpace(name))}
	if rest != "" {
		for _, kv := range strings.Split(rest, ",") {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				return Config{}, errors.Wrapf(tensor.ErrInvalidArgument,
					"device %q: option %q is not key=value", desc, kv)
			}
			if err := cfg.set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
				return Config{}, errors.WithMessagef(err, "device %q", desc)
			}
		}
	}
	return cfg, cfg.Validate()
}

func (c *Config) set(key, value string) error {
	if key == "seed" {
		seed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(tensor.ErrInvalidArgument, "seed %q: %v", value, err)
		}
		c.Seed = &seed
		return nil
	}
	var dst *int
	switch key {
	case "workers":
		dst = &c.Workers
	case "min_chunk":
		dst = &c.MinChunk
	case "adapter":
		dst = &c.Adapter
	default:
		return errors.Wrapf(tensor.ErrInvalidArgument, "unknown option %q", key)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return errors.Wrapf(tensor.ErrInvalidArgument, "%s %q: %v", key, value, err)
	}
	*dst = n
	return nil
}

// ParseYAML parses a YAML device description.
func ParseYAML(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(tensor.ErrInvalidArgument, "device config: %v", err)
	}
	if cfg.Backend == "" {
		cfg.Backend = Naive
	}
	cfg.Backend = strings.ToLower(cfg.Backend)
	return cfg, cfg.Validate()
}

// LoadConfig reads a YAML device description from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read device config")
	}
	cfg, err := ParseYAML(data)
	if err != nil {
		return Config{}, errors.WithMessage(err, path)
	}
	return cfg, nil
}

// Validate checks the backend name and that the options apply to it.
func (c Config) Validate() error {
	switch c.Backend {
	case Naive:
		if c.Workers != 0 || c.MinChunk != 0 || c.Adapter != 0 {
			return errors.Wrap(tensor.ErrInvalidArgument, "naive backend takes only a seed")
		}
	case CPU:
		if c.Workers < 0 || c.MinChunk < 0 {
			return errors.Wrapf(tensor.ErrInvalidArgument,
				"cpu backend: workers=%d min_chunk=%d must not be negative", c.Workers, c.MinChunk)
		}
		if c.Adapter != 0 {
			return errors.Wrap(tensor.ErrInvalidArgument, "cpu backend takes no adapter")
		}
	case WebGPU:
		if c.Adapter < 0 {
			return errors.Wrapf(tensor.ErrInvalidArgument, "webgpu backend: adapter=%d", c.Adapter)
		}
		if c.Workers != 0 || c.MinChunk != 0 {
			return errors.Wrap(tensor.ErrInvalidArgument, "webgpu backend takes no worker options")
		}
	default:
		return errors.Wrapf(tensor.ErrInvalidArgument,
			"unknown backend %q (want %s, %s or %s)", c.Backend, Naive, CPU, WebGPU)
	}
	return nil
}

// String renders the config in the form accepted by ParseConfig.
func (c Config) String() string {
	var opts []string
	if c.Workers != 0 {
		opts = append(opts, "workers="+strconv.Itoa(c.Workers))
	}
	if c.MinChunk != 0 {
		opts = append(opts, "min_chunk="+strconv.Itoa(c.MinChunk))
	}
	if c.Adapter != 0 {
		opts = append(opts, "adapter="+strconv.Itoa(c.Adapter))
	}
	if c.Seed != nil {
		opts = append(opts, "seed="+strconv.FormatUint(*c.Seed, 10))
	}
	if len(opts) == 0 {
		return c.Backend
	}
	return c.Backend + ":" + strings.Join(opts, ",")
}

// NewDevice creates the device described by c.
func (c Config) NewDevice() (*tensor.Device, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	klog.V(1).Infof("backend: creating device %s", c)
	switch c.Backend {
	case CPU:
		var opts []cpu.Option
		if c.Workers > 0 {
			opts = append(opts, cpu.WithWorkers(c.Workers))
		}
		if c.MinChunk > 0 {
			opts = append(opts, cpu.WithMinChunk(c.MinChunk))
		}
		if c.Seed != nil {
			opts = append(opts, cpu.WithSeed(*c.Seed))
		}
		return cpu.NewDevice(opts...), nil
	case WebGPU:
		opts := []webgpu.Option{webgpu.WithAdapter(c.Adapter)}
		if c.Seed != nil {
			opts = append(opts, webgpu.WithSeed(*c.Seed))
		}
		return webgpu.NewDevice(opts...)
	default:
		var opts []tensor.Option
		if c.Seed != nil {
			opts = append(opts, tensor.WithSeed(*c.Seed))
		}
		return naive.NewDevice(opts...), nil
	}
}

// New creates a device from a description such as "cpu:workers=4".
func New(desc string) (*tensor.Device, error) {
	cfg, err := ParseConfig(desc)
	if err != nil {
		return nil, err
	}
	return cfg.NewDevice()
}

// FromEnv creates the device named by the environment.
//
// GRADCORE_DEVICE_CONFIG takes precedence over GRADCORE_DEVICE. With neither
// set the naive backend is used.
func FromEnv() (*tensor.Device, error) {
	if path := os.Getenv(EnvDeviceConfig); path != "" {
		cfg, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		return cfg.NewDevice()
	}
	return New(os.Getenv(EnvDevice))
}
