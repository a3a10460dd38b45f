package procscan

import "strings"

// Rule is one entry of a prefix filter. A rule matches a candidate path if
// the candidate starts with Prefix (case-sensitive, byte-prefix). Reject
// rules are written in config files with a leading "!", e.g. "!/usr/sbin/".
type Rule struct {
	Prefix string
	Reject bool
}

// PrefixFilter classifies candidate paths by the first rule that matches
// them, in order. If no rule matches, the candidate is accepted.
type PrefixFilter struct {
	rules []Rule
}

// NewPrefixFilter builds a filter from raw config strings: each one is
// either a bare prefix (accept) or a "!"-prefixed one (reject).
func NewPrefixFilter(raw []string) *PrefixFilter {
	rules := make([]Rule, 0, len(raw))
	for _, r := range raw {
		reject := strings.HasPrefix(r, "!")
		prefix := r
		if reject {
			prefix = r[1:]
		}
		rules = append(rules, Rule{Prefix: prefix, Reject: reject})
	}
	return &PrefixFilter{rules: rules}
}

// Accept reports whether candidate is accepted by the filter: true unless
// the first matching rule is a reject rule. An empty rule list always
// accepts.
func (f *PrefixFilter) Accept(candidate string) bool {
	if f == nil {
		return true
	}
	for _, r := range f.rules {
		if strings.HasPrefix(candidate, r.Prefix) {
			return !r.Reject
		}
	}
	return true
}
