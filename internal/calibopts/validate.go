package calibopts

import "fmt"

// graph is the dependency adjacency over primitive indices. Names that are
// referenced but not defined get indices past the defined primitives.
type graph struct {
	defined int
	names   []string
	adj     [][]int
}

func (o *Options) graph() *graph {
	g := &graph{defined: len(o.prims), adj: make([][]int, len(o.prims))}
	ids := make(map[string]int, len(o.prims))
	for i, p := range o.prims {
		ids[p.Name] = i
		g.names = append(g.names, p.Name)
	}
	for i, p := range o.prims {
		seen := map[int]bool{}
		for _, f := range p.Frontiers {
			for _, d := range f {
				id, ok := ids[d.Name]
				if !ok {
					id = len(g.names)
					ids[d.Name] = id
					g.names = append(g.names, d.Name)
				}
				if !seen[id] {
					seen[id] = true
					g.adj[i] = append(g.adj[i], id)
				}
			}
		}
	}
	return g
}

// Validate checks that every dependency is defined, that no primitive
// depends on itself transitively and that every decalibration mode is
// known. Primitives are checked in definition order.
func (o *Options) Validate() error {
	g := o.graph()
	visited := make([]bool, len(g.names))
	parent := make([]int, len(g.names))
	var queue []int
	for p := range o.prims {
		clear(visited)
		queue = append(queue[:0], g.adj[p]...)
		for _, id := range queue {
			visited[id] = true
			parent[id] = p
		}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			if id == p {
				return &GraphError{Primitive: o.prims[p].Name, Err: fmt.Errorf("%w: closed by %q", ErrDependencyCycle, g.names[parent[id]])}
			}
			if id >= g.defined {
				return &GraphError{Primitive: o.prims[p].Name, Err: fmt.Errorf("%w: %q", ErrUndefinedDependency, g.names[id])}
			}
			for _, next := range g.adj[id] {
				if !visited[next] {
					visited[next] = true
					parent[next] = id
					queue = append(queue, next)
				}
			}
		}
		if m := o.prims[p].DecalibMode; !m.Valid() {
			return &GraphError{Primitive: o.prims[p].Name, Err: fmt.Errorf("%w: %q", ErrInvalidDecalibMode, string(m))}
		}
	}
	return nil
}
