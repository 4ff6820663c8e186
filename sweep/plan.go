// ABOUTME: Sweep plans parsed from YAML documents with parameter order preserved.
// ABOUTME: Uses the yaml.v3 node API because plain map decoding loses document key order.
package sweep

import (
	"fmt"
	"iter"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan is a declarative sweep definition: a strategy plus an ordered
// parameter set, typically loaded from a YAML document.
type Plan struct {
	Strategy Strategy
	Params   *ParamSet
}

// LoadPlan reads and parses a YAML sweep plan from path.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	return plan, nil
}

// ParsePlan parses a YAML sweep plan of the form:
//
//	strategy: product
//	parameters:
//	  lr: [0.1, 0.01]
//	  depth: [2, 4, 8]
//
// Parameter order follows the document, so plan-driven enumeration is
// reproducible across loads. A missing strategy defaults to Product. Every
// parameter value must be a sequence. Unknown top-level keys are rejected.
func ParsePlan(data []byte) (*Plan, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty plan document: %w", ErrInvalidInput)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("plan document must be a mapping: %w", ErrInvalidInput)
	}

	plan := &Plan{Strategy: Product, Params: NewParamSet()}
	sawParams := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "strategy":
			s, err := ParseStrategy(val.Value)
			if err != nil {
				return nil, err
			}
			plan.Strategy = s
		case "parameters":
			if val.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("parameters must be a mapping: %w", ErrInvalidInput)
			}
			sawParams = true
			for j := 0; j+1 < len(val.Content); j += 2 {
				name, listNode := val.Content[j], val.Content[j+1]
				var values []any
				if err := listNode.Decode(&values); err != nil {
					return nil, fmt.Errorf("parameter %q: %w", name.Value, err)
				}
				plan.Params.Set(name.Value, values...)
			}
		default:
			return nil, fmt.Errorf("unknown plan key %q: %w", key.Value, ErrInvalidInput)
		}
	}
	if !sawParams {
		return nil, fmt.Errorf("plan has no parameters: %w", ErrInvalidInput)
	}
	return plan, nil
}

// Generate returns the plan's assignment sequence.
func (p *Plan) Generate() (iter.Seq[Assignment], error) {
	return Generate(p.Params, p.Strategy)
}

// Count returns the number of assignments the plan will generate.
func (p *Plan) Count() (int, error) {
	return Count(p.Params, p.Strategy)
}
