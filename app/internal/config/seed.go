package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed declares validators and monitors to upsert at startup
type Seed struct {
	Validators []SeedValidator `yaml:"validators"`
	Monitors   []SeedMonitor   `yaml:"monitors"`
}

// SeedValidator is one validator entry of a seed file
type SeedValidator struct {
	ID        string `yaml:"id"`
	PublicKey string `yaml:"public_key"`
	Location  string `yaml:"location"`
	IP        string `yaml:"ip"`
}

// SeedMonitor is one monitor entry of a seed file
type SeedMonitor struct {
	ID                  string `yaml:"id"`
	Owner               string `yaml:"owner"`
	Name                string `yaml:"name"`
	URL                 string `yaml:"url"`
	CheckIntervalS      int    `yaml:"check_interval_s"`
	ExpectedStatusCodes []int  `yaml:"expected_status_codes"`
	Paused              bool   `yaml:"paused"`
}

// LoadSeed reads and checks a YAML seed file
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeed(data)
}

// ParseSeed decodes a YAML seed document. Every entry needs a unique id so
// applying the seed twice is a no-op.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	seen := make(map[string]bool)
	for i, v := range s.Validators {
		if v.ID == "" {
			return nil, fmt.Errorf("seed validator %d: id is required", i)
		}
		if seen["v:"+v.ID] {
			return nil, fmt.Errorf("seed validator %q: duplicate id", v.ID)
		}
		seen["v:"+v.ID] = true
	}
	for i, m := range s.Monitors {
		if m.ID == "" {
			return nil, fmt.Errorf("seed monitor %d: id is required", i)
		}
		if m.Owner == "" {
			return nil, fmt.Errorf("seed monitor %q: owner is required", m.ID)
		}
		if seen["m:"+m.ID] {
			return nil, fmt.Errorf("seed monitor %q: duplicate id", m.ID)
		}
		seen["m:"+m.ID] = true
	}
	return &s, nil
}
