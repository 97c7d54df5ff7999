// Package config loads the parameters of a C2C deployment from the
// environment and an optional dotenv file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/manycore-odp/c2c/mem/atomics"
	"github.com/manycore-odp/c2c/ring"
	"github.com/manycore-odp/c2c/rpc"
)

// Environment variables read by Load.
const (
	EnvClusters     = "C2C_CLUSTERS"
	EnvRxTagBase    = "C2C_RX_TAG_BASE"
	EnvMaxPayload   = "C2C_MAX_PAYLOAD"
	EnvRingCapacity = "C2C_RING_CAPACITY"
	EnvMode         = "C2C_MODE"
	EnvEmulated64   = "C2C_EMULATED64"
	EnvRecord       = "C2C_RECORD"
	EnvMonitorPort  = "C2C_MONITOR_PORT"
)

// ErrInvalid is returned when a parameter cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the parameters of a deployment.
type Config struct {
	Clusters     int
	RxTagBase    int
	MaxPayload   int
	RingCapacity int
	Mode         rpc.Mode
	Variant      atomics.Variant
	RecordPath   string
	MonitorPort  int
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Clusters:     4,
		RxTagBase:    rpc.DefaultRxTagBase,
		MaxPayload:   rpc.DefaultMaxPayload,
		RingCapacity: 256,
		Mode:         rpc.PollMode,
		Variant:      atomics.Native64,
	}
}

// Load reads the configuration. Variables in the file at path are applied
// first without overriding those already set in the environment. An empty
// path skips the file; a missing file is an error.
func Load(path string) (Config, error) {
	if path != "" {
		err := godotenv.Load(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}

	return FromEnv(os.Getenv)
}

// FromEnv builds a configuration from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()

	ints := []struct {
		key string
		dst *int
	}{
		{EnvClusters, &c.Clusters},
		{EnvRxTagBase, &c.RxTagBase},
		{EnvMaxPayload, &c.MaxPayload},
		{EnvRingCapacity, &c.RingCapacity},
		{EnvMonitorPort, &c.MonitorPort},
	}

	for _, i := range ints {
		s := strings.TrimSpace(getenv(i.key))
		if s == "" {
			continue
		}

		v, err := strconv.Atoi(s)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalid, i.key, s)
		}

		*i.dst = v
	}

	if s := getenv(EnvMode); s != "" {
		mode, err := ParseMode(s)
		if err != nil {
			return Config{}, err
		}

		c.Mode = mode
	}

	if s := getenv(EnvEmulated64); s != "" {
		emulated, err := strconv.ParseBool(s)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalid, EnvEmulated64, s)
		}

		if emulated {
			c.Variant = atomics.Emulated64
		}
	}

	c.RecordPath = getenv(EnvRecord)

	return c, c.Validate()
}

// ParseMode converts the name of a server mode.
func ParseMode(s string) (rpc.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "poll":
		return rpc.PollMode, nil
	case "interrupt":
		return rpc.InterruptMode, nil
	default:
		return 0, fmt.Errorf("%w: mode %q", ErrInvalid, s)
	}
}

// Validate checks that the parameters can build a deployment.
func (c Config) Validate() error {
	switch {
	case c.Clusters < 2:
		return fmt.Errorf("%w: at least 2 clusters are needed, got %d",
			ErrInvalid, c.Clusters)
	case c.RxTagBase < 0:
		return fmt.Errorf("%w: negative rx tag base", ErrInvalid)
	case c.MaxPayload < 0:
		return fmt.Errorf("%w: negative max payload", ErrInvalid)
	case c.RingCapacity <= 0 || c.RingCapacity > ring.MaxCapacity:
		return fmt.Errorf("%w: ring capacity %d out of (0, %d]",
			ErrInvalid, c.RingCapacity, ring.MaxCapacity)
	case c.MonitorPort < 0 || c.MonitorPort > 65535:
		return fmt.Errorf("%w: monitor port %d", ErrInvalid, c.MonitorPort)
	}

	return nil
}
