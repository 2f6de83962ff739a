// Package selection implements spec.md §4.C5: reducing a flat, ordered
// list of spec definitions to the runnable set, via an AND-combined chain
// of tag/name/context/line/status rules followed by a focus-mode pass.
package selection

import (
	"regexp"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/juvistr/draftspec/internal/spectree"
)

// LineFilter restricts a file to a set of source lines; a spec passes iff
// its declared line falls within [line, nextSpecLineInFile] for some
// listed line.
type LineFilter struct {
	File  string
	Lines []int
}

// FilterSpec is the selection predicate (spec.md §3).
type FilterSpec struct {
	Lines []LineFilter

	IncludeTags []string
	ExcludeTags []string

	IncludeNamePattern string
	ExcludeNamePattern string

	IncludeContexts []string
	ExcludeContexts []string

	FocusedOnly bool
	PendingOnly bool
	SkippedOnly bool
}

// Decision is the outcome for one spec: either it runs, or it is excluded
// with a documented reason.
type Decision struct {
	Spec   *spectree.SpecDefinition
	Run    bool
	Reason spectree.SkipReason
}

// Select applies every rule in spec.md §4.C5's order to specs (already in
// declaration order) and returns one Decision per input spec, preserving
// order.
func Select(specs []*spectree.SpecDefinition, filter FilterSpec) ([]Decision, error) {
	decisions := make([]Decision, len(specs))
	for i, s := range specs {
		decisions[i] = Decision{Spec: s, Run: true}
	}

	if filter.FocusedOnly || filter.PendingOnly || filter.SkippedOnly {
		for i, d := range decisions {
			if !statusMatches(d.Spec, filter) {
				decisions[i] = reject(d.Spec, spectree.SkipFilteredByTag)
			}
		}
	}

	if len(filter.Lines) > 0 {
		byFile := nextLineIndex(specs)
		for i, d := range decisions {
			if !d.Run {
				continue
			}
			if !passesLineFilter(d.Spec, filter.Lines, byFile) {
				decisions[i] = reject(d.Spec, spectree.SkipFilteredByLine)
			}
		}
	}

	if len(filter.IncludeTags) > 0 || len(filter.ExcludeTags) > 0 {
		for i, d := range decisions {
			if !d.Run {
				continue
			}
			if !passesTagRules(d.Spec, filter) {
				decisions[i] = reject(d.Spec, spectree.SkipFilteredByTag)
			}
		}
	}

	var includeRe, excludeRe *regexp.Regexp
	var err error
	if filter.IncludeNamePattern != "" {
		includeRe, err = regexp.Compile(filter.IncludeNamePattern)
		if err != nil {
			return nil, err
		}
	}
	if filter.ExcludeNamePattern != "" {
		excludeRe, err = regexp.Compile(filter.ExcludeNamePattern)
		if err != nil {
			return nil, err
		}
	}
	if includeRe != nil || excludeRe != nil {
		for i, d := range decisions {
			if !d.Run {
				continue
			}
			name := d.Spec.DisplayName()
			if includeRe != nil && !includeRe.MatchString(name) {
				decisions[i] = reject(d.Spec, spectree.SkipFilteredByName)
				continue
			}
			if excludeRe != nil && excludeRe.MatchString(name) {
				decisions[i] = reject(d.Spec, spectree.SkipFilteredByName)
			}
		}
	}

	if len(filter.IncludeContexts) > 0 || len(filter.ExcludeContexts) > 0 {
		for i, d := range decisions {
			if !d.Run {
				continue
			}
			ok, err := passesContextGlobs(d.Spec, filter)
			if err != nil {
				return nil, err
			}
			if !ok {
				decisions[i] = reject(d.Spec, spectree.SkipFilteredByContext)
			}
		}
	}

	applyFocusMode(decisions)

	for i, d := range decisions {
		if !d.Run {
			continue
		}
		if d.Spec.Skipped {
			decisions[i] = reject(d.Spec, spectree.SkipExplicitlySkipped)
			continue
		}
		if d.Spec.Pending() {
			decisions[i] = reject(d.Spec, spectree.SkipPending)
		}
	}

	return decisions, nil
}

func reject(s *spectree.SpecDefinition, reason spectree.SkipReason) Decision {
	return Decision{Spec: s, Run: false, Reason: reason}
}

func statusMatches(s *spectree.SpecDefinition, filter FilterSpec) bool {
	matched := false
	if filter.FocusedOnly && s.Focused {
		matched = true
	}
	if filter.PendingOnly && s.Pending() {
		matched = true
	}
	if filter.SkippedOnly && s.Skipped {
		matched = true
	}
	return matched
}

// nextLineIndex maps a file to the sorted list of spec declaration lines
// in that file, used to derive each spec's line range upper bound.
func nextLineIndex(specs []*spectree.SpecDefinition) map[string][]int {
	byFile := map[string][]int{}
	for _, s := range specs {
		byFile[s.SourceFile] = append(byFile[s.SourceFile], s.Line)
	}
	for f := range byFile {
		lines := byFile[f]
		for i := 1; i < len(lines); i++ {
			for j := i; j > 0 && lines[j-1] > lines[j]; j-- {
				lines[j-1], lines[j] = lines[j], lines[j-1]
			}
		}
		byFile[f] = lines
	}
	return byFile
}

func passesLineFilter(s *spectree.SpecDefinition, filters []LineFilter, byFile map[string][]int) bool {
	var matching *LineFilter
	for i := range filters {
		if filters[i].File == s.SourceFile {
			matching = &filters[i]
			break
		}
	}
	if matching == nil {
		return true
	}
	upper := upperBoundLine(s.SourceFile, s.Line, byFile)
	for _, l := range matching.Lines {
		if l >= s.Line && l <= upper {
			return true
		}
	}
	return false
}

func upperBoundLine(file string, line int, byFile map[string][]int) int {
	lines := byFile[file]
	for _, l := range lines {
		if l > line {
			return l
		}
	}
	return int(^uint(0) >> 1)
}

func passesTagRules(s *spectree.SpecDefinition, filter FilterSpec) bool {
	if len(filter.IncludeTags) > 0 {
		hit := false
		for _, t := range filter.IncludeTags {
			if s.HasTag(t) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for _, t := range filter.ExcludeTags {
		if s.HasTag(t) {
			return false
		}
	}
	return true
}

func passesContextGlobs(s *spectree.SpecDefinition, filter FilterSpec) (bool, error) {
	display := s.DisplayName()
	path := s.ContextPath()

	matchAny := func(patterns []string) (bool, error) {
		for _, pat := range patterns {
			if ok, err := doublestar.Match(pat, display); err != nil {
				return false, err
			} else if ok {
				return true, nil
			}
			for _, seg := range path {
				if ok, err := doublestar.Match(pat, seg); err != nil {
					return false, err
				} else if ok {
					return true, nil
				}
			}
		}
		return false, nil
	}

	if len(filter.IncludeContexts) > 0 {
		ok, err := matchAny(filter.IncludeContexts)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	if len(filter.ExcludeContexts) > 0 {
		ok, err := matchAny(filter.ExcludeContexts)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}

// applyFocusMode implements spec.md §4.C5 rule 6: computed strictly after
// every other filter, against the post-filter set only.
func applyFocusMode(decisions []Decision) {
	anyFocused := false
	for _, d := range decisions {
		if d.Run && d.Spec.Focused {
			anyFocused = true
			break
		}
	}
	if !anyFocused {
		return
	}
	for i, d := range decisions {
		if d.Run && !d.Spec.Focused {
			decisions[i] = reject(d.Spec, spectree.SkipNotFocused)
		}
	}
}
