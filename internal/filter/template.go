package filter

import (
	"fmt"
	"path/filepath"

	"github.com/dyluth/microbundle/pkg/gep"
)

// Criteria selects templates from a library.
// All filters are ANDed together; empty values match everything.
type Criteria struct {
	IDGlob   string // glob over template id, e.g. "retry_*"
	Category string // exact match; "optimize" also matches templates with no category
}

// Validate checks the glob is well formed.
func (c *Criteria) Validate() error {
	if c.IDGlob == "" {
		return nil
	}
	if _, err := filepath.Match(c.IDGlob, ""); err != nil {
		return fmt.Errorf("invalid id pattern %q: %w", c.IDGlob, err)
	}
	return nil
}

// Matches reports whether t passes every criterion.
func (c *Criteria) Matches(t *gep.Template) bool {
	if c.IDGlob != "" {
		matched, err := filepath.Match(c.IDGlob, t.ID)
		if err != nil || !matched {
			return false
		}
	}

	if c.Category != "" {
		category := t.Category
		if category == "" {
			category = gep.CategoryOptimize
		}
		if category != c.Category {
			return false
		}
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.IDGlob != "" || c.Category != ""
}

// Apply returns the matching templates in their original order.
func (c *Criteria) Apply(templates []gep.Template) []gep.Template {
	if !c.HasFilters() {
		return templates
	}
	out := make([]gep.Template, 0, len(templates))
	for i := range templates {
		if c.Matches(&templates[i]) {
			out = append(out, templates[i])
		}
	}
	return out
}
