package pattern

import (
	"github.com/ostafen/sigscan/internal/match"
)

// Rule associates a byte signature with a description and a priority.
// Rules are immutable once built.
type Rule struct {
	priority    int
	description string
	matcher     *match.Pattern
}

func NewRule(priority int, signature []byte, description string) Rule {
	return Rule{
		priority:    priority,
		description: description,
		matcher:     match.Compile(signature),
	}
}

func (r Rule) Priority() int {
	return r.priority
}

func (r Rule) Description() string {
	return r.description
}

// Pattern returns the signature bytes. Callers must not modify them.
func (r Rule) Pattern() []byte {
	if r.matcher == nil {
		return nil
	}
	return r.matcher.Bytes()
}

// Matches reports whether the rule's signature occurs anywhere in buf.
func (r Rule) Matches(buf []byte) bool {
	return r.matcher != nil && r.matcher.Match(buf)
}

// Table is an ordered list of rules. It is read-only once loaded and safe
// for concurrent use.
type Table []Rule

// Classify returns the matching rule with the highest priority. When several
// matching rules share that priority, the one appearing first in the table
// wins. The boolean is false when no rule matches buf.
func (t Table) Classify(buf []byte) (Rule, bool) {
	var (
		best  Rule
		found bool
	)

	for _, r := range t {
		if found && r.priority <= best.priority {
			continue
		}

		if r.Matches(buf) {
			best = r
			found = true
		}
	}
	return best, found
}
