// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package rawpvt

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// AdrOpt contains options of the carrier residual engine
type AdrOpt struct {
	Enable bool   `yaml:"enable"`
	RefLla string `yaml:"ref_lla"` // Reference position "lat lon hei" [deg, deg, m]
}

// Config is the full processing configuration
type Config struct {
	Align   AlignOpt `yaml:"align"`
	Pvt     PvtOpt   `yaml:"pvt"`
	Adr     AdrOpt   `yaml:"adr"`
	Workers int      `yaml:"workers"` // 0: sequential with warm start, otherwise parallel with cold start
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		Align:   *NewAlignOpt(),
		Pvt:     *NewPvtOpt(),
		Adr:     AdrOpt{Enable: false, RefLla: ""},
		Workers: 0,
	}
}

// LoadConfig reads YAML overrides on top of the defaults. Unknown keys are rejected.
func LoadConfig(r io.Reader) (*Config, error) {
	cfg := NewConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	switch {
	case c.Align.TowUncNanosMax <= 0:
		return fmt.Errorf("align.tow_unc_nanos_max must be positive: %v", c.Align.TowUncNanosMax)
	case c.Align.PrrUncMpsMax <= 0:
		return fmt.Errorf("align.prr_unc_mps_max must be positive: %v", c.Align.PrrUncMpsMax)
	case c.Align.EpochGroupNanos <= 0:
		return fmt.Errorf("align.epoch_group_nanos must be positive: %v", c.Align.EpochGroupNanos)
	case c.Pvt.MaxIter < 1:
		return fmt.Errorf("pvt.max_iter must be at least 1: %v", c.Pvt.MaxIter)
	case c.Pvt.MinSats < 4:
		return fmt.Errorf("pvt.min_sats must be at least 4: %v", c.Pvt.MinSats)
	case c.Pvt.MaxDelPosM <= 0:
		return fmt.Errorf("pvt.max_del_pos_m must be positive: %v", c.Pvt.MaxDelPosM)
	case c.Workers < 0:
		return fmt.Errorf("workers must not be negative: %v", c.Workers)
	}
	return nil
}

// RefPosition parses adr.ref_lla. nil when not set.
func (c *Config) RefPosition() (*PosLLH, error) {
	if c.Adr.RefLla == "" {
		return nil, nil
	}
	var llh PosLLH
	if err := llh.Set(c.Adr.RefLla); err != nil {
		return nil, fmt.Errorf("adr.ref_lla: %w", err)
	}
	return &llh, nil
}
