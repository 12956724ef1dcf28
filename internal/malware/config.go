package malware

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SignatureConfig holds operator-defined signatures.
type SignatureConfig struct {
	Signatures []SignatureDef `yaml:"signatures"`
}

// SignatureDef defines one signature as plain text or hex bytes.
type SignatureDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Text string `yaml:"text,omitempty"`
	Hex  string `yaml:"hex,omitempty"`
}

// LoadConfig reads signature config from path. A missing file returns nil.
func LoadConfig(path string) (*SignatureConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read signature config: %w", err)
	}

	var cfg SignatureConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse signature config: %w", err)
	}
	return &cfg, nil
}

// CompileSignatures validates config entries.
func CompileSignatures(cfg *SignatureConfig) ([]Signature, error) {
	if cfg == nil {
		return nil, nil
	}

	var out []Signature
	for i, def := range cfg.Signatures {
		if def.Name == "" {
			return nil, fmt.Errorf("signatures[%d]: name is required", i)
		}
		if (def.Text == "") == (def.Hex == "") {
			return nil, fmt.Errorf("signatures[%d] %q: exactly one of text or hex is required", i, def.Name)
		}

		pattern := []byte(def.Text)
		if def.Hex != "" {
			b, err := hex.DecodeString(strings.ReplaceAll(def.Hex, " ", ""))
			if err != nil {
				return nil, fmt.Errorf("signatures[%d] %q: invalid hex: %w", i, def.Name, err)
			}
			pattern = b
		}

		typ := def.Type
		if typ == "" {
			typ = "custom"
		}
		out = append(out, Signature{Name: def.Name, Type: typ, Pattern: pattern})
	}
	return out, nil
}
