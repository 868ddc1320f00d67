package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/oakvm/internal/ir"
)

// CycleError reports an inheritance cycle.
type CycleError struct {
	Path []string // ["app/A", "app/B", "app/A"]
	Pos  token.Pos
}

func (e *CycleError) Error() string {
	msg := fmt.Sprintf("inheritance cycle: %s", strings.Join(e.Path, " → "))
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), msg)
	}
	return msg
}

// dependencyGraph maps a class name to the declared classes it extends or
// implements. Bootstrap classes are leaves and never appear.
type dependencyGraph map[string][]string

func buildDependencyGraph(decls []ir.ClassDecl) dependencyGraph {
	declared := make(map[string]bool, len(decls))
	for _, d := range decls {
		declared[d.Name] = true
	}

	graph := make(dependencyGraph, len(decls))
	for _, d := range decls {
		edges := []string{}
		if declared[d.Super] {
			edges = append(edges, d.Super)
		}
		for _, iface := range d.Interfaces {
			if declared[iface] {
				edges = append(edges, iface)
			}
		}
		graph[d.Name] = edges
	}
	return graph
}

// FindCycles returns every inheritance cycle as a closed path. Cycles are
// reported in declaration order of their first member.
func FindCycles(decls []ir.ClassDecl) [][]string {
	graph := buildDependencyGraph(decls)
	order := make([]string, len(decls))
	for i, d := range decls {
		order[i] = d.Name
	}

	var cycles [][]string
	for _, scc := range tarjanSCC(order, graph) {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		cycles = append(cycles, reconstructCyclePath(scc, order, graph))
	}
	return cycles
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm,
// visiting roots in the given order.
func tarjanSCC(order []string, graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath walks edges inside the SCC from its earliest
// declared member until it returns there.
func reconstructCyclePath(scc []string, order []string, graph dependencyGraph) []string {
	inSCC := make(map[string]bool, len(scc))
	for _, node := range scc {
		inSCC[node] = true
	}

	start := scc[0]
	for _, name := range order {
		if inSCC[name] {
			start = name
			break
		}
	}

	// DFS for a simple path back to start.
	path := []string{start}
	visited := map[string]bool{start: true}
	var walk func(string) bool
	walk = func(v string) bool {
		for _, w := range graph[v] {
			if !inSCC[w] {
				continue
			}
			if w == start {
				path = append(path, w)
				return true
			}
			if visited[w] {
				continue
			}
			visited[w] = true
			path = append(path, w)
			if walk(w) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	walk(start)
	return path
}

// topoOrder emits every declaration after its declared super class and
// interfaces, keeping declaration order otherwise. decls must be acyclic.
func topoOrder(decls []ir.ClassDecl) []ir.ClassDecl {
	byName := make(map[string]ir.ClassDecl, len(decls))
	for _, d := range decls {
		byName[d.Name] = d
	}
	graph := buildDependencyGraph(decls)

	out := make([]ir.ClassDecl, 0, len(decls))
	done := make(map[string]bool, len(decls))
	var visit func(string)
	visit = func(name string) {
		if done[name] {
			return
		}
		done[name] = true
		for _, dep := range graph[name] {
			visit(dep)
		}
		out = append(out, byName[name])
	}
	for _, d := range decls {
		visit(d.Name)
	}
	return out
}
