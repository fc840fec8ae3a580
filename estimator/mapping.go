package estimator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// CalPoint pairs a measured joint position with the field vector recorded
// at that position on the calibration rig.
type CalPoint struct {
	Angles [2]float64 `yaml:"angles" json:"angles"`
	Field  []float64  `yaml:"field" json:"field"`
}

// Mapping is a calibration table: per-joint lists of calibration points,
// keyed by joint index in the device's joint order. Joints without an
// entry have no interpolator and produce no angle estimate.
type Mapping struct {
	Joints map[int][]CalPoint
}

type mappingDoc struct {
	Joints map[int][]CalPoint `yaml:"joints"`
}

// LoadMapping reads a calibration mapping from disk. `.json` files use
// the compact positional layout the calibration rig writes; anything else
// is parsed as the structured YAML schema:
//
//	joints:
//	  0:
//	    - angles: [12.5, -3.0]
//	      field: [ ...12 numbers... ]
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	var m *Mapping
	if strings.EqualFold(filepath.Ext(path), ".json") {
		m, err = parsePositionalMapping(data)
	} else {
		m, err = parseYAMLMapping(data)
	}
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

func parseYAMLMapping(data []byte) (*Mapping, error) {
	var doc mappingDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	m := &Mapping{Joints: make(map[int][]CalPoint, len(doc.Joints))}
	for joint, points := range doc.Joints {
		if len(points) == 0 {
			continue
		}
		m.Joints[joint] = points
	}
	return m, nil
}

// positionalPoint decodes the rig's two-element [angles, field] tuples,
// where the field is a nested pixel×axis array flattened row-major.
type positionalPoint struct {
	Angles [2]float64
	Field  []float64
}

func (p *positionalPoint) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("calibration entry has %d elements, want [angles, field]", len(pair))
	}
	if err := json.Unmarshal(pair[0], &p.Angles); err != nil {
		return fmt.Errorf("angles: %w", err)
	}
	var nested interface{}
	if err := json.Unmarshal(pair[1], &nested); err != nil {
		return fmt.Errorf("field: %w", err)
	}
	field, err := flattenNumbers(nested, nil)
	if err != nil {
		return fmt.Errorf("field: %w", err)
	}
	p.Field = field
	return nil
}

func parsePositionalMapping(data []byte) (*Mapping, error) {
	var raw map[string][]positionalPoint
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	m := &Mapping{Joints: make(map[int][]CalPoint, len(raw))}
	for key, points := range raw {
		joint, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("joint key %q is not an index", key)
		}
		if len(points) == 0 {
			continue
		}
		converted := make([]CalPoint, len(points))
		for i, p := range points {
			converted[i] = CalPoint{Angles: p.Angles, Field: p.Field}
		}
		m.Joints[joint] = converted
	}
	return m, nil
}

func flattenNumbers(v interface{}, out []float64) ([]float64, error) {
	switch t := v.(type) {
	case float64:
		return append(out, t), nil
	case []interface{}:
		var err error
		for _, el := range t {
			if out, err = flattenNumbers(el, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected %T in field data", v)
	}
}
