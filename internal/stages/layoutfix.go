package stages

import (
	"regexp"
	"strings"
)

var (
	flexDecl    = regexp.MustCompile(`(?i)flex\s*:\s*([^;{}]*?)\s*(!important)?\s*(;|}|$)`)
	displayDecl = regexp.MustCompile(`(?i)display\s*:\s*(grid|inline-grid)\s*(!important)?\s*(;|}|$)`)
	unitlessNum = regexp.MustCompile(`^[0-9]*\.?[0-9]+$`)
)

// rewriteDecls calls fn for every declaration matched by re whose property
// name starts a declaration (not a suffix like "-webkit-flex" or "flex-grow").
// fn returns the replacement declarations without the terminator.
func rewriteDecls(css string, re *regexp.Regexp, fn func(m []string) (string, bool)) string {
	var b strings.Builder
	last := 0
	for _, idx := range re.FindAllStringSubmatchIndex(css, -1) {
		start, end := idx[0], idx[1]
		if start > 0 {
			prev := css[start-1]
			if prev != ';' && prev != '{' && prev != ' ' && prev != '\t' && prev != '\n' && prev != '\r' {
				continue
			}
		}
		m := make([]string, len(idx)/2)
		for i := range m {
			if idx[2*i] >= 0 {
				m[i] = css[idx[2*i]:idx[2*i+1]]
			}
		}
		repl, ok := fn(m)
		if !ok {
			continue
		}
		term := m[len(m)-1]
		b.WriteString(css[last:start])
		b.WriteString(repl)
		if term == "}" {
			b.WriteString(";")
		}
		b.WriteString(term)
		last = end
	}
	if last == 0 {
		return css
	}
	b.WriteString(css[last:])
	return b.String()
}

// FixFlexbugs rewrites flex shorthands that IE 10-11 misinterpret:
// a bare grow factor gains explicit shrink and a 0% basis, a unitless zero
// basis becomes 0%, and a calc() basis is split into longhands.
func FixFlexbugs(css string) string {
	return rewriteDecls(css, flexDecl, func(m []string) (string, bool) {
		value, important := m[1], m[2]
		if important != "" {
			important = " " + important
		}
		parts := strings.Fields(value)
		switch {
		case len(parts) == 1 && unitlessNum.MatchString(parts[0]):
			return "flex: " + parts[0] + " 1 0%" + important, true
		case len(parts) == 3 && parts[2] == "0":
			return "flex: " + parts[0] + " " + parts[1] + " 0%" + important, true
		case len(parts) >= 3 && strings.HasPrefix(strings.ToLower(parts[2]), "calc("):
			basis := strings.Join(parts[2:], " ")
			return "flex-grow: " + parts[0] + important +
				"; flex-shrink: " + parts[1] + important +
				"; flex-basis: " + basis + important, true
		}
		return "", false
	})
}

// AddGridFallbacks prefixes grid containers with their -ms- equivalents.
func AddGridFallbacks(css string) string {
	return rewriteDecls(css, displayDecl, func(m []string) (string, bool) {
		value, important := strings.ToLower(m[1]), m[2]
		if important != "" {
			important = " " + important
		}
		return "display: -ms-" + value + important + "; display: " + value + important, true
	})
}
