package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v2"
)

// LoadFile loads a config file, picking the format by extension. Files
// without a known extension are tried as HCL, then JSON. Defaults are
// applied but the result is not validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		cfg, err = LoadHCL(data, path)
	case ".json":
		cfg, err = LoadJSON(data)
	case ".yaml", ".yml":
		cfg, err = LoadYAML(data)
	default:
		cfg, err = LoadHCL(data, path)
		if err != nil {
			cfg, err = LoadJSON(data)
		}
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAndValidate loads path, applies defaults and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); errs.HasErrors() {
		return nil, fmt.Errorf("invalid config %s: %w", path, errs)
	}
	return cfg, nil
}

// LoadHCL loads config from HCL bytes.
func LoadHCL(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %s", diags.Error())
	}
	return finish(&cfg)
}

// LoadJSON loads config from JSON bytes. Unknown fields are rejected.
func LoadJSON(data []byte) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("JSON parse error: %w", err)
	}
	return finish(&cfg)
}

// LoadYAML loads config from YAML bytes. Unknown fields are rejected.
func LoadYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	if _, err := ParseVersion(cfg.SchemaVersion); err != nil {
		return nil, fmt.Errorf("invalid schema version: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// SaveFile saves config to a file (format determined by extension).
func SaveFile(cfg *Config, path string) error {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = CurrentSchemaVersion
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data = GenerateHCL(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	// The file holds WPA passphrases.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateHCL renders cfg as formatted HCL.
func GenerateHCL(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	gohcl.EncodeIntoBody(cfg, f.Body())
	return hclwrite.Format(f.Bytes())
}

// Sample returns a starter HCL config for radio with placeholder
// credentials.
func Sample(radio string) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	body.SetAttributeValue("schema_version", cty.StringVal(CurrentSchemaVersion))
	body.AppendNewline()

	if radio != "" {
		rb := body.AppendNewBlock("radio", []string{radio}).Body()
		rb.SetAttributeValue("ap_suffix", cty.StringVal(DefaultAPSuffix))
		body.AppendNewline()
	}

	ub := body.AppendNewBlock("upstream", nil).Body()
	ub.SetAttributeValue("ssid", cty.StringVal("HomeNetwork"))
	ub.SetAttributeValue("password", cty.StringVal("change-me-please"))
	body.AppendNewline()

	ab := body.AppendNewBlock("ap", nil).Body()
	ab.SetAttributeValue("ssid", cty.StringVal("HomeNetwork-EXT"))
	ab.SetAttributeValue("password", cty.StringVal("change-me-please"))
	ab.SetAttributeValue("channel", cty.NumberIntVal(DefaultChannel))
	ab.SetAttributeValue("dhcp_range", cty.StringVal(DefaultDHCPRange))
	ab.SetAttributeValue("gateway", cty.StringVal(DefaultGateway))
	dns := make([]cty.Value, len(DefaultDNS))
	for i, d := range DefaultDNS {
		dns[i] = cty.StringVal(d)
	}
	ab.SetAttributeValue("dns", cty.ListVal(dns))
	body.AppendNewline()

	rc := body.AppendNewBlock("reconcile", nil).Body()
	rc.SetAttributeValue("interval", cty.StringVal(DefaultInterval))
	rc.SetAttributeValue("max_attempts", cty.NumberIntVal(DefaultMaxAttempts))
	body.AppendNewline()

	mb := body.AppendNewBlock("metrics", nil).Body()
	mb.SetAttributeValue("listen", cty.StringVal("127.0.0.1:9110"))

	return hclwrite.Format(f.Bytes())
}
