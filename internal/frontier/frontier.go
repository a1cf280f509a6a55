// Package frontier groups primitives that must share one set of calibration
// factors. Two primitives end up in the same frontier when any primitive
// depends on both of them within one dependency frontier, transitively.
package frontier

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/samcharles93/nndquant/internal/calibopts"
	"github.com/samcharles93/nndquant/internal/logger"
)

// DefaultNameTemplate names frontiers frontier1, frontier2...
const DefaultNameTemplate = "frontier{index}"

// Member is one primitive, or one feature group of it, in a frontier.
// Group is -1 when the primitive is used as one concatenated entity.
type Member = calibopts.CanonicalDep

// Frontier is a set of members calibrated jointly.
type Frontier struct {
	Index   int
	Name    string
	Members []Member
}

// Result holds the computed frontiers.
type Result struct {
	Frontiers []Frontier
	of        map[Member]int
	perGroup  map[string]bool
}

// FrontierOf returns the index of the frontier containing m.
func (r *Result) FrontierOf(m Member) (int, bool) {
	i, ok := r.of[m]
	return i, ok
}

// PerGroup reports whether the named primitive is referenced per feature
// group rather than as one concatenated entity.
func (r *Result) PerGroup(name string) bool {
	return r.perGroup[name]
}

// consumer is one dependency frontier of one primitive (group).
type consumer struct {
	member   Member
	frontier int
}

// Name expands a frontier name template. {index} and {frontier_idx} are
// replaced with the one-based frontier index.
func Name(template string, index int) string {
	if template == "" {
		template = DefaultNameTemplate
	}
	n := strconv.Itoa(index + 1)
	return strings.NewReplacer("{index}", n, "{frontier_idx}", n).Replace(template)
}

// Compute validates o and computes its frontiers. Frontiers are ordered by
// discovery, walking primitives in definition order and groups ascending;
// members within a frontier use the same order.
func Compute(o *calibopts.Options, nameTemplate string, log logger.Logger) (*Result, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	// How is every referenced primitive used: concatenated (-1) or per group?
	perGroup := map[string]bool{}
	for _, p := range o.Primitives() {
		for _, f := range p.Frontiers {
			for _, d := range f {
				c := o.Canonical(d)
				split := c.Group >= 0
				if seen, ok := perGroup[c.Name]; ok && seen != split {
					return nil, &calibopts.GraphError{Primitive: c.Name, Err: calibopts.ErrAmbiguousSplitUsage}
				}
				perGroup[c.Name] = split
			}
		}
	}

	var members []Member
	deps := map[consumer][]Member{}
	var consumers []consumer
	for _, p := range o.Primitives() {
		groups := []int{-1}
		if perGroup[p.Name] {
			groups = groups[:0]
			for g := range p.Groups {
				groups = append(groups, g)
			}
		}
		frontiers := p.Frontiers
		if len(frontiers) == 0 {
			frontiers = [][]calibopts.Dep{nil}
		}
		for _, g := range groups {
			m := Member{Name: p.Name, Groups: max(p.Groups, 1), Group: g}
			members = append(members, m)
			for fi, f := range frontiers {
				c := consumer{member: m, frontier: fi}
				consumers = append(consumers, c)
				var ds []Member
				for _, d := range f {
					cd := o.Canonical(d)
					if !slices.Contains(ds, cd) {
						ds = append(ds, cd)
					}
				}
				deps[c] = ds
			}
		}
	}

	rev := map[Member][]consumer{}
	for _, c := range consumers {
		for _, d := range deps[c] {
			rev[d] = append(rev[d], c)
		}
	}

	order := make(map[Member]int, len(members))
	for i, m := range members {
		order[m] = i
	}

	res := &Result{of: map[Member]int{}, perGroup: perGroup}
	scanned := map[Member]bool{}
	for _, start := range members {
		if scanned[start] {
			continue
		}
		scanned[start] = true
		set := []Member{start}
		pending := []Member{start}
		for len(pending) > 0 {
			cur := pending[0]
			pending = pending[1:]
			for _, c := range rev[cur] {
				for _, d := range deps[c] {
					if scanned[d] {
						continue
					}
					scanned[d] = true
					set = append(set, d)
					pending = append(pending, d)
				}
			}
		}
		slices.SortFunc(set, func(a, b Member) int {
			return cmp.Compare(order[a], order[b])
		})

		idx := len(res.Frontiers)
		for _, m := range set {
			res.of[m] = idx
		}
		res.Frontiers = append(res.Frontiers, Frontier{Index: idx, Name: Name(nameTemplate, idx), Members: set})
	}

	log.Info("computed dominance frontiers", "count", len(res.Frontiers))
	for _, f := range res.Frontiers {
		names := make([]string, len(f.Members))
		for i, m := range f.Members {
			names[i] = m.String()
		}
		log.Debug("frontier", "name", f.Name, "members", names)
	}
	return res, nil
}
