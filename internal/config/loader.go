package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/splat.report/internal/monitoring"
)

// CfgArgsFile is the parameter file training leaves in the model directory.
const CfgArgsFile = "cfg_args"

const maxFileSize = 1 * 1024 * 1024 // 1MB

func readLimited(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// LoadConfigFile loads a --configs file. JSON and YAML are accepted, chosen
// by extension. Sections that are omitted leave the corresponding values
// unset, so partial configs are safe.
func LoadConfigFile(path string) (*Params, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	data, err := readLimited(path)
	if err != nil {
		return nil, err
	}

	p := &Params{}
	if ext == ".json" {
		err = json.Unmarshal(data, p)
	} else {
		err = yaml.Unmarshal(data, p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if len(p.Optimization) > 0 {
		monitoring.Logf("config %s: ignoring %d optimization parameter(s)", path, len(p.Optimization))
	}
	return p, nil
}

// LoadCfgArgs reads the model parameters saved in modelPath. The file may
// hold the Namespace(...) repr written by training or a JSON object. A
// missing file is not an error: an empty parameter set is returned, matching
// how the command line falls back to its own values.
func LoadCfgArgs(modelPath string) (*ModelParams, error) {
	path := filepath.Join(modelPath, CfgArgsFile)
	data, err := readLimited(path)
	if errors.Is(err, os.ErrNotExist) {
		monitoring.Logf("Config file not found at %s", path)
		return &ModelParams{}, nil
	}
	if err != nil {
		return nil, err
	}

	var m *ModelParams
	if isNamespace(data) {
		m, err = parseNamespace(data)
	} else {
		m = &ModelParams{}
		err = json.Unmarshal(data, m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	monitoring.Logf("Config file found: %s", path)
	return m, nil
}

// SaveCfgArgs writes m to modelPath/cfg_args in the Namespace(...) form
// training uses.
func SaveCfgArgs(modelPath string, m *ModelParams) error {
	if err := os.MkdirAll(modelPath, 0755); err != nil {
		return fmt.Errorf("failed to create model dir: %w", err)
	}
	return os.WriteFile(filepath.Join(modelPath, CfgArgsFile), []byte(formatNamespace(m)), 0644)
}

// Combine resolves the effective parameters. Precedence, lowest first:
// built-in defaults (the Get* fallbacks), the model's cfg_args, flags given
// explicitly on the command line, then the --configs file.
func Combine(cfgArgs *ModelParams, cli *Params, configs *Params) (*Params, error) {
	out := &Params{}
	out.Model.Merge(cfgArgs)
	out.Merge(cli)
	out.Merge(configs)
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if out.Model.GetModelPath() == "" {
		return nil, errors.New("model_path is required")
	}
	return out, nil
}
