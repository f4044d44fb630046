package filter

import (
	"fmt"
	"strings"

	"github.com/rebeliceyang/lazyvar/internal/models"
)

// IncompatibleFieldError reports filter criteria that use fields missing from
// an analysis. It is recoverable: the criteria can be pruned with the
// user's consent.
type IncompatibleFieldError struct {
	Analysis models.Analysis
	// Artifact names what holds the criteria: a filter, a highlighting rule
	// or a sorting criterion
	Artifact string
	Leaves   []string
	Fields   []string
}

func (e *IncompatibleFieldError) Error() string {
	return fmt.Sprintf("%s uses %s not available in analysis %s",
		e.Artifact, plural(len(e.Fields), "field", "fields")+" "+strings.Join(e.Fields, ", "), e.Analysis)
}

// NewIncompatibleFieldError describes the incompatible leaves of a tree, or
// returns nil when the tree is compatible
func NewIncompatibleFieldError(artifact string, t Tree, a models.Analysis) *IncompatibleFieldError {
	bad := t.IncompatibleLeaves(a)
	if len(bad) == 0 {
		return nil
	}
	e := &IncompatibleFieldError{Analysis: a, Artifact: artifact}
	seen := make(map[string]struct{})
	for _, ref := range bad {
		e.Leaves = append(e.Leaves, ref.Leaf.String())
		for _, name := range ref.Leaf.IncompatibleFields(a) {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				e.Fields = append(e.Fields, name)
			}
		}
	}
	return e
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
