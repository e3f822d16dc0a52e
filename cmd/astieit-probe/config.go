package main

import (
	"fmt"
	"os"

	"github.com/asticode/go-astieit"
	"gopkg.in/yaml.v3"
)

// Config is the probe configuration, read from an optional yaml file
type Config struct {
	Metrics       MetricsConfig `yaml:"metrics"`
	PacketSize    int           `yaml:"packet_size"` // 0 means auto detected
	PIDs          []uint16      `yaml:"pids"`        // default: [0x12]
	VerifyCRC     *bool         `yaml:"verify_crc"`  // default: true
	VersionPolicy string        `yaml:"version_policy"`
	Workers       int           `yaml:"workers"`
}

// MetricsConfig is the configuration of the prometheus endpoint
type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address"` // e.g. :9090, metrics are not served when empty
	Namespace     string `yaml:"namespace"`
}

// newConfig returns the configuration used when no file is provided
func newConfig() Config {
	c := Config{}
	c.applyDefaults()
	return c
}

func loadConfig(path string) (c Config, err error) {
	var b []byte
	if b, err = os.ReadFile(path); err != nil {
		err = fmt.Errorf("main: reading %s failed: %w", path, err)
		return
	}
	if err = yaml.Unmarshal(b, &c); err != nil {
		err = fmt.Errorf("main: unmarshaling %s failed: %w", path, err)
		return
	}
	c.applyDefaults()
	if _, ok := astieit.ParseVersionPolicy(c.VersionPolicy); !ok {
		err = fmt.Errorf("main: invalid version policy %q", c.VersionPolicy)
		return
	}
	if c.PacketSize != 0 && c.PacketSize != astieit.MpegTsPacketSize && c.PacketSize != 192 {
		err = fmt.Errorf("main: invalid packet size %d", c.PacketSize)
		return
	}
	return
}

func (c *Config) applyDefaults() {
	if len(c.PIDs) == 0 {
		c.PIDs = []uint16{astieit.PIDEIT}
	}
	if c.VerifyCRC == nil {
		v := true
		c.VerifyCRC = &v
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "astieit"
	}
}
