package records

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/odyssey-erp/console/internal/domain"
)

// matcher does case-insensitive substring search over field values using
// Unicode case folding. A blank term matches everything.
type matcher struct {
	needle string
	fold   cases.Caser
}

func newMatcher(term string) *matcher {
	fold := cases.Fold()
	return &matcher{needle: fold.String(strings.TrimSpace(term)), fold: fold}
}

func (m *matcher) matches(fields domain.Fields) bool {
	if m.needle == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(m.fold.String(f.Value), m.needle) {
			return true
		}
	}
	return false
}
