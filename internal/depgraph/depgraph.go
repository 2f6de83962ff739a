// Package depgraph tracks #load includes between spec files (spec.md
// §4.C4): the transitive closure used to compute, from a set of changed
// files, the set of spec files affected by the change.
package depgraph

import (
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/juvistr/draftspec/internal/scriptparse"
)

// UnresolvedEdge records a #load path that could not be resolved to an
// existing file; recorded as a warning, never fatal (spec.md §4.C4).
type UnresolvedEdge struct {
	From string
	Path string
	Line int
}

// Graph is the file-level dependency graph for one spec root.
type Graph struct {
	// edges[file] is the set of files file directly #load's, by absolute path.
	edges map[string]map[string]struct{}
	// namespaces[file] is the set of namespace names file declares, derived
	// from its base name without extension (the dialect has no explicit
	// `namespace` declaration in scope here; the static parser only reports
	// load edges, so namespace membership is file-identity based).
	namespaces map[string][]string
	// declaredBy[namespace] is the set of files declaring that namespace.
	declaredBy map[string]map[string]struct{}

	Unresolved []UnresolvedEdge
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		edges:      make(map[string]map[string]struct{}),
		namespaces: make(map[string][]string),
		declaredBy: make(map[string]map[string]struct{}),
	}
}

// AddFile registers file's static parse result into the graph: its #load
// edges (resolved relative to file's directory) and its declared namespace.
func (g *Graph) AddFile(file string, result *scriptparse.Result) {
	abs, err := filepath.Abs(file)
	if err != nil {
		abs = file
	}
	if _, ok := g.edges[abs]; !ok {
		g.edges[abs] = make(map[string]struct{})
	}
	dir := filepath.Dir(abs)
	for _, load := range result.Loads {
		target := load.Path
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, target)
		}
		target, err := filepath.Abs(target)
		if err != nil {
			g.Unresolved = append(g.Unresolved, UnresolvedEdge{From: abs, Path: load.Path, Line: load.Line})
			continue
		}
		g.edges[abs][target] = struct{}{}
	}

	ns := namespaceOf(abs)
	g.namespaces[abs] = []string{ns}
	if _, ok := g.declaredBy[ns]; !ok {
		g.declaredBy[ns] = make(map[string]struct{})
	}
	g.declaredBy[ns][abs] = struct{}{}
}

func namespaceOf(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}

// MarkUnresolved records that file's #load target could not be found on
// disk, after a filesystem existence check the caller performed.
func (g *Graph) MarkUnresolved(from, path string, line int) {
	g.Unresolved = append(g.Unresolved, UnresolvedEdge{From: from, Path: path, Line: line})
}

// TransitiveClosure returns the set of files (including file itself)
// reachable from file via #load edges, short-circuiting cycles.
func (g *Graph) TransitiveClosure(file string) []string {
	abs, _ := filepath.Abs(file)
	visited := map[string]struct{}{}
	var walk func(string)
	walk = func(f string) {
		if _, ok := visited[f]; ok {
			return
		}
		visited[f] = struct{}{}
		for dep := range g.edges[f] {
			walk(dep)
		}
	}
	walk(abs)
	out := make([]string, 0, len(visited))
	for f := range visited {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// AffectedBy returns the set of spec files transitively affected by a set
// of changed files: any file whose #load closure contains a changed file,
// or whose namespace set intersects a namespace declared by a changed
// file (spec.md's "Affected spec" glossary entry).
func (g *Graph) AffectedBy(changed []string) []string {
	changedAbs := make(map[string]struct{}, len(changed))
	for _, c := range changed {
		abs, _ := filepath.Abs(c)
		changedAbs[abs] = struct{}{}
	}

	changedNamespaces := map[string]struct{}{}
	for f := range changedAbs {
		for _, ns := range g.namespaces[f] {
			changedNamespaces[ns] = struct{}{}
		}
	}
	for ns := range changedNamespaces {
		for f := range g.declaredBy[ns] {
			changedAbs[f] = struct{}{}
		}
	}

	affected := map[string]struct{}{}
	for f := range g.edges {
		closure := g.TransitiveClosure(f)
		for _, dep := range closure {
			if _, hit := changedAbs[dep]; hit {
				affected[f] = struct{}{}
				break
			}
		}
	}
	out := make([]string, 0, len(affected))
	for f := range affected {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// MatchesAny reports whether path matches any of the given doublestar
// glob patterns (source-root include/ignore lists), relative to root.
func MatchesAny(patterns []string, root, path string) (bool, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	for _, pat := range patterns {
		ok, err := doublestar.Match(pat, rel)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
