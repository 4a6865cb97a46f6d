package scenarios

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/aristath/allocator/internal/domain"
	"gopkg.in/yaml.v3"
)

type scenarioFile struct {
	Scenarios []domain.Scenario `yaml:"scenarios"`
}

// Parse decodes scenarios from YAML. Both a top-level list and a mapping
// with a "scenarios" key are accepted; JSON works since it is valid YAML.
// A scenario whose fields cannot be decoded is returned with Malformed set,
// so the rest of the batch still runs.
func Parse(data []byte) ([]domain.Scenario, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("scenario file is empty")
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse scenarios: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}

	switch root.Kind {
	case yaml.SequenceNode:
		var list []domain.Scenario
		if err := root.Decode(&list); err != nil {
			return nil, fmt.Errorf("failed to parse scenario list: %w", err)
		}
		return list, nil
	case yaml.MappingNode:
		var file scenarioFile
		if err := root.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to parse scenarios mapping: %w", err)
		}
		if file.Scenarios == nil {
			return nil, fmt.Errorf("no scenarios found")
		}
		return file.Scenarios, nil
	default:
		return nil, fmt.Errorf("failed to parse scenarios: expected a list or a mapping with a scenarios key at line %d", root.Line)
	}
}

// LoadFile reads scenarios from path. A missing file yields DefaultScenarios.
func LoadFile(path string) ([]domain.Scenario, error) {
	if path == "" {
		return DefaultScenarios(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultScenarios(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios file: %w", err)
	}
	return Parse(data)
}

// DefaultScenarios returns the conservative and moderate scenarios used when
// no scenarios file is configured.
func DefaultScenarios() []domain.Scenario {
	constraints := func() map[string]float64 {
		return map[string]float64{
			"SPY":                   0.13,
			"BOEING_Stable_2_84":    0.13,
			"BOEING_BALANCED_70_30": 0.03,
			"BA":                    0.02,
		}
	}
	return []domain.Scenario{
		{Name: "Conservative_5_Percent", TargetReturn: 0.05, Constraints: constraints()},
		{Name: "Moderate_7_Percent", TargetReturn: 0.07, Constraints: constraints()},
	}
}
