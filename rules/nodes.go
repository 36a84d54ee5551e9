package rules

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Nodes is an ordered list of ruleset nodes. It decodes the polymorphic
// JSON/YAML form, dispatching on each element's "type" field.
type Nodes []Node

type nodeHeader struct {
	Type string `json:"type" yaml:"type"`
}

// newNode allocates the variant named by typ. A missing type decodes as a
// group, mirroring how the evaluator treats every non-condition node.
func newNode(typ string) (Node, error) {
	switch typ {
	case TypeCondition:
		return &Condition{}, nil
	case TypeGroup, "":
		return &Group{}, nil
	default:
		return nil, fmt.Errorf("unknown node type %q", typ)
	}
}

// UnmarshalJSON decodes a JSON array of typed nodes
func (n *Nodes) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	if raws == nil {
		*n = nil
		return nil
	}

	nodes := make(Nodes, 0, len(raws))
	for i, raw := range raws {
		var hdr nodeHeader
		if err := json.Unmarshal(raw, &hdr); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		node, err := newNode(hdr.Type)
		if err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		if err := json.Unmarshal(raw, node); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		nodes = append(nodes, node)
	}
	*n = nodes
	return nil
}

// MarshalJSON encodes nodes with their "type" discriminator
func (n Nodes) MarshalJSON() ([]byte, error) {
	out := make([]any, 0, len(n))
	for _, node := range n {
		switch v := node.(type) {
		case *Condition:
			out = append(out, struct {
				Type string `json:"type"`
				*Condition
			}{TypeCondition, v})
		case *Group:
			out = append(out, struct {
				Type string `json:"type"`
				*Group
			}{TypeGroup, v})
		default:
			return nil, fmt.Errorf("unsupported node %T", node)
		}
	}
	return json.Marshal(out)
}

// UnmarshalYAML decodes a YAML sequence of typed nodes
func (n *Nodes) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: nodes must be a sequence", value.Line)
	}

	nodes := make(Nodes, 0, len(value.Content))
	for _, item := range value.Content {
		var hdr nodeHeader
		if err := item.Decode(&hdr); err != nil {
			return err
		}
		node, err := newNode(hdr.Type)
		if err != nil {
			return fmt.Errorf("line %d: %w", item.Line, err)
		}
		if err := item.Decode(node); err != nil {
			return err
		}
		nodes = append(nodes, node)
	}
	*n = nodes
	return nil
}
