// Package config loads the single YAML configuration file naming the
// listen addresses and the tuning constants §9 calls out as named knobs,
// in the teacher's own config-file idiom: unmarshal, then fill in any
// field left at its zero value with the spec's default.
package config

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// Config is the full set of operator-overridable settings.
type Config struct {
	RTPListenAddr  string `yaml:"rtpListenAddr"`
	HTTPListenAddr string `yaml:"httpListenAddr"`

	ArchiveLimitSeconds int `yaml:"archiveLimit"`
	VideoSamplesPerPart int `yaml:"videoSamplesPerPart"`
	FrameRate           int `yaml:"frameRate"`
}

// Defaults, matching the hardcoded constants named in §4.2/§4.4/§9.
const (
	DefaultRTPListenAddr      = ":8554"
	DefaultHTTPListenAddr     = ":8080"
	DefaultArchiveLimitSecs   = 3600
	DefaultVideoSamplesPerPart = 8
	DefaultFrameRate           = 25
)

// New parses configYAML and fills in any omitted field with its default.
func New(configYAML []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(configYAML, &c); err != nil {
		return nil, fmt.Errorf("config: could not unmarshal config.yaml: %w", err)
	}

	if c.RTPListenAddr == "" {
		c.RTPListenAddr = DefaultRTPListenAddr
	}
	if c.HTTPListenAddr == "" {
		c.HTTPListenAddr = DefaultHTTPListenAddr
	}
	if c.ArchiveLimitSeconds == 0 {
		c.ArchiveLimitSeconds = DefaultArchiveLimitSecs
	}
	if c.VideoSamplesPerPart == 0 {
		c.VideoSamplesPerPart = DefaultVideoSamplesPerPart
	}
	if c.FrameRate == 0 {
		c.FrameRate = DefaultFrameRate
	}

	return &c, nil
}
