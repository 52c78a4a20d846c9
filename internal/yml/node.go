// Package yml converts YAML documents into plain Go values so YAML graph documents
// can share the JSON compilation path.
package yml

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	Node yaml.Node
)

// Decode parses YAML bytes into a Node
func Decode(data []byte) (*Node, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return (*Node)(&node), nil
}

// ToJSON converts a YAML document into JSON bytes
func ToJSON(data []byte) ([]byte, error) {
	node, err := Decode(data)
	if err != nil {
		return nil, err
	}
	value := node.Interface()
	if value == nil {
		return nil, fmt.Errorf("empty yaml document")
	}
	return json.Marshal(value)
}

// Lookup returns value node of a mapping key, matched case-insensitively
func (n *Node) Lookup(name string) *Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return (*Node)(n.Content[0]).Lookup(name)
	}
	var ret *Node
	_ = n.Pairs(func(key string, value *Node) error {
		if ret == nil && strings.EqualFold(key, name) {
			ret = value
		}
		return nil
	})
	return ret
}

// Pairs iterates mapping entries
func (n *Node) Pairs(callback func(key string, node *Node) error) error {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := callback(n.Content[i].Value, (*Node)(n.Content[i+1])); err != nil {
			return err
		}
	}
	return nil
}

// Items iterates sequence entries
func (n *Node) Items(callback func(index int, node *Node) error) error {
	if n.Kind != yaml.SequenceNode {
		return nil
	}
	for i, item := range n.Content {
		if err := callback(i, (*Node)(item)); err != nil {
			return err
		}
	}
	return nil
}

// Interface returns the plain Go value of the node
func (n *Node) Interface() interface{} {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}
		return (*Node)(n.Content[0]).Interface()
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil
		}
		return (*Node)(n.Alias).Interface()
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!bool":
			return strings.EqualFold(n.Value, "true")
		case "!!null":
			return nil
		case "!!float":
			f, err := strconv.ParseFloat(n.Value, 64)
			if err != nil {
				return n.Value
			}
			return f
		case "!!int":
			i, err := strconv.Atoi(n.Value)
			if err != nil {
				return n.Value
			}
			return i
		default:
			return n.Value
		}
	case yaml.MappingNode:
		aMap := make(map[string]interface{}, len(n.Content)/2)
		_ = n.Pairs(func(key string, value *Node) error {
			aMap[key] = value.Interface()
			return nil
		})
		return aMap
	case yaml.SequenceNode:
		aSlice := make([]interface{}, 0, len(n.Content))
		_ = n.Items(func(_ int, value *Node) error {
			aSlice = append(aSlice, value.Interface())
			return nil
		})
		return aSlice
	}
	return nil
}
