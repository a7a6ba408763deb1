// Package depgraph orders tables by foreign key dependency so referenced
// tables load before their referrers, and enumerates the reference cycles
// that make a strict ordering impossible.
package depgraph

import (
	"sort"

	"pgsync/internal/catalog"
)

// Edge is a dependency: From references To, so To must load first.
type Edge struct {
	From string
	To   string
}

// Plan holds a load order and any reference cycles found. Tables on a cycle
// still appear in Order; cycles are reported so callers can refuse or warn.
type Plan struct {
	Order  []string
	Cycles [][]string
}

// EdgesFromTables derives dependency edges from the tables' foreign keys,
// keeping only edges whose both endpoints are in the set. Self references
// never force an ordering and are dropped.
func EdgesFromTables(tables []*catalog.Table) []Edge {
	inSet := make(map[string]bool, len(tables))
	for _, t := range tables {
		inSet[t.Name] = true
	}

	seen := make(map[Edge]bool)
	var edges []Edge
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			if fk.RefTable == t.Name || !inSet[fk.RefTable] {
				continue
			}
			e := Edge{From: t.Name, To: fk.RefTable}
			if !seen[e] {
				seen[e] = true
				edges = append(edges, e)
			}
		}
	}
	return edges
}

// Build computes a deterministic load order for the named tables. Referenced
// tables sort before referrers; ties break lexicographically. Tables caught
// in cycles are appended at the end in name order, after every acyclic table.
func Build(tables []string, edges []Edge) *Plan {
	inSet := make(map[string]bool, len(tables))
	for _, t := range tables {
		inSet[t] = true
	}

	// dependents[t] lists tables that reference t; indegree counts how many
	// tables t itself references.
	dependents := make(map[string][]string, len(tables))
	indegree := make(map[string]int, len(tables))
	for _, t := range tables {
		indegree[t] = 0
	}
	for _, e := range edges {
		if !inSet[e.From] || !inSet[e.To] || e.From == e.To {
			continue
		}
		dependents[e.To] = append(dependents[e.To], e.From)
		indegree[e.From]++
	}

	var ready []string
	for t, deg := range indegree {
		if deg == 0 {
			ready = append(ready, t)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(tables))
	placed := make(map[string]bool, len(tables))
	for len(ready) > 0 {
		t := ready[0]
		ready = ready[1:]
		order = append(order, t)
		placed[t] = true

		freed := false
		for _, dep := range dependents[t] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
				freed = true
			}
		}
		if freed {
			sort.Strings(ready)
		}
	}

	// Anything unplaced sits on a cycle. Append in name order so the run
	// remains deterministic even when a strict order does not exist.
	var residual []string
	for _, t := range tables {
		if !placed[t] {
			residual = append(residual, t)
		}
	}
	sort.Strings(residual)
	order = append(order, residual...)

	return &Plan{Order: order, Cycles: findCycles(tables, edges)}
}

// Waves groups a load order into stages: every table in a wave depends only
// on tables in earlier waves, so tables within one wave can load
// concurrently. Cycle members each get a wave of their own.
func Waves(p *Plan, edges []Edge) [][]string {
	cyclic := make(map[string]bool)
	for _, cycle := range p.Cycles {
		for _, t := range cycle {
			cyclic[t] = true
		}
	}

	deps := make(map[string][]string)
	for _, e := range edges {
		deps[e.From] = append(deps[e.From], e.To)
	}

	stage := make(map[string]int, len(p.Order))
	var waves [][]string
	for _, t := range p.Order {
		s := 0
		for _, d := range deps[t] {
			if ds, ok := stage[d]; ok && ds+1 > s {
				s = ds + 1
			}
		}
		if cyclic[t] {
			// Serialize cycle members after everything placed so far.
			s = len(waves)
		}
		stage[t] = s
		for len(waves) <= s {
			waves = append(waves, nil)
		}
		waves[s] = append(waves[s], t)
	}
	return waves
}

// findCycles enumerates elementary reference cycles with an iterative
// depth-first walk. Each cycle is reported once, rotated so its
// lexicographically smallest table comes first.
func findCycles(tables []string, edges []Edge) [][]string {
	adj := make(map[string][]string)
	for _, e := range edges {
		if e.From == e.To {
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
	}
	for _, next := range adj {
		sort.Strings(next)
	}

	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)

	seen := make(map[string]bool)
	var cycles [][]string

	for _, start := range sorted {
		type frame struct {
			node string
			next int
		}

		stack := []frame{{node: start}}
		path := []string{start}
		onPath := map[string]bool{start: true}

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			next := adj[f.node]

			if f.next >= len(next) {
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				delete(onPath, f.node)
				continue
			}

			n := next[f.next]
			f.next++

			if n == start {
				cycle := normalize(path)
				key := cycleKey(cycle)
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
				continue
			}
			if onPath[n] {
				continue
			}

			stack = append(stack, frame{node: n})
			path = append(path, n)
			onPath[n] = true
		}
	}
	return cycles
}

// normalize rotates a cycle so its smallest member leads.
func normalize(path []string) []string {
	min := 0
	for i, t := range path {
		if t < path[min] {
			min = i
		}
	}
	out := make([]string, 0, len(path))
	out = append(out, path[min:]...)
	out = append(out, path[:min]...)
	return out
}

func cycleKey(cycle []string) string {
	key := ""
	for _, t := range cycle {
		key += t + "\x00"
	}
	return key
}
