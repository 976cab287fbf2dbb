package models

import "strings"

// KeywordGroup is a named matching rule loaded once per analysis run and
// read-only during the run.
type KeywordGroup struct {
	// Word is the display label for the group.
	Word string `yaml:"word" json:"word"`
	// Required holds the substrings a title must contain. By default a
	// title matches when it contains at least one of them; with MatchAll
	// the group has compound AND semantics and every substring must hit.
	Required []string `yaml:"required" json:"required"`
	// Filters holds substrings that exclude a title even when it would
	// otherwise match this group.
	Filters []string `yaml:"filters,omitempty" json:"filters,omitempty"`
	// MatchAll switches Required from any-of to all-of.
	MatchAll bool `yaml:"match_all,omitempty" json:"match_all,omitempty"`
}

// Matches reports whether the title satisfies this group's required
// substrings and is not excluded by the group's own filters. Global filter
// words are the caller's responsibility.
func (g KeywordGroup) Matches(title string) bool {
	if len(g.Required) == 0 {
		return false
	}

	if g.MatchAll {
		for _, req := range g.Required {
			if !strings.Contains(title, req) {
				return false
			}
		}
	} else {
		hit := false
		for _, req := range g.Required {
			if strings.Contains(title, req) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}

	for _, f := range g.Filters {
		if f != "" && strings.Contains(title, f) {
			return false
		}
	}
	return true
}
