package pipeline

import (
	"fmt"
	"strings"
)

// Category is one of the independently buildable asset groups.
type Category int

const (
	Pages Category = iota
	Styles
	Scripts
	Images
)

var categoryNames = [...]string{"pages", "styles", "scripts", "images"}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory maps a name (case-insensitive) to its Category.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range categoryNames {
		if n == s {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// AllCategories lists every category in build order.
func AllCategories() []Category { return []Category{Pages, Styles, Scripts, Images} }

// NotifyKind is what the browser should do after a category writes output.
type NotifyKind string

const (
	NotifyNone   NotifyKind = "none"
	NotifyReload NotifyKind = "reload"
	NotifyInject NotifyKind = "inject"
)

// DefaultNotify returns the live-reload behavior for c: styles are injected
// in place, pages and scripts trigger a full reload, images do nothing.
func DefaultNotify(c Category) NotifyKind {
	switch c {
	case Styles:
		return NotifyInject
	case Pages, Scripts:
		return NotifyReload
	default:
		return NotifyNone
	}
}
