package config

import (
	"encoding/json"
)

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	// JSON round-trip copies every nested slice and pointer.
	b, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var clone Config
	if err := json.Unmarshal(b, &clone); err != nil {
		return nil
	}
	return &clone
}
