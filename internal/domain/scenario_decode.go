package domain

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// scenarioFields mirrors Scenario with an optional target so a missing
// target_return can be told apart from an explicit zero.
type scenarioFields struct {
	Name         string             `json:"name" yaml:"name"`
	TargetReturn *float64           `json:"target_return" yaml:"target_return"`
	Constraints  map[string]float64 `json:"constraints" yaml:"constraints"`
}

func (f scenarioFields) scenario(decodeErr error) Scenario {
	s := Scenario{Name: f.Name, Constraints: f.Constraints}
	switch {
	case decodeErr != nil:
		s.Malformed = decodeErr.Error()
	case f.TargetReturn == nil:
		s.Malformed = "target_return is missing"
	default:
		s.TargetReturn = *f.TargetReturn
	}
	return s
}

// UnmarshalYAML decodes one scenario. Field errors mark the scenario as
// malformed instead of failing the enclosing document.
func (s *Scenario) UnmarshalYAML(node *yaml.Node) error {
	var f scenarioFields
	err := node.Decode(&f)
	*s = f.scenario(err)
	return nil
}

// UnmarshalJSON decodes one scenario. Field errors mark the scenario as
// malformed instead of failing the enclosing document; syntax errors are
// still reported by the outer decoder.
func (s *Scenario) UnmarshalJSON(data []byte) error {
	var f scenarioFields
	err := json.Unmarshal(data, &f)
	*s = f.scenario(err)
	return nil
}
