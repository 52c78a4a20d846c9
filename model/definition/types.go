package definition

// TypeNode represents one element of a definition type hierarchy
type TypeNode struct {
	ID       string      `json:"id" yaml:"id"`
	Name     string      `json:"name,omitempty" yaml:"name,omitempty"`
	Children []*TypeNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// Lookup returns the path from the outermost ancestor to the type matching id, or name when no id matches.
// It returns nil when no type matches.
func Lookup(d *Definition, idOrName string) []*TypeNode {
	if d == nil || idOrName == "" {
		return nil
	}
	return LookupTypes(d.Types, idOrName)
}

// LookupTypes walks roots depth first using an explicit stack, visiting siblings in declaration order.
// Ids take precedence over names.
func LookupTypes(roots []*TypeNode, idOrName string) []*TypeNode {
	if path := walk(roots, func(n *TypeNode) bool { return n.ID == idOrName }); path != nil {
		return path
	}
	return walk(roots, func(n *TypeNode) bool { return n.Name == idOrName })
}

func walk(roots []*TypeNode, match func(n *TypeNode) bool) []*TypeNode {
	type frame struct {
		node   *TypeNode
		parent *frame
	}
	stack := make([]*frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		if roots[i] != nil {
			stack = append(stack, &frame{node: roots[i]})
		}
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if match(top.node) {
			var path []*TypeNode
			for f := top; f != nil; f = f.parent {
				path = append(path, f.node)
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}
		children := top.node.Children
		for i := len(children) - 1; i >= 0; i-- {
			if children[i] != nil {
				stack = append(stack, &frame{node: children[i], parent: top})
			}
		}
	}
	return nil
}
