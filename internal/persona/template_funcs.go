package persona

import (
	"strings"
	"text/template"
)

// templateFuncs are the helpers available to persona prompt templates.
// All of them are pure and return safe defaults instead of panicking.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// Template usage: {{add $i 1}}
		"add": func(a, b int) int { return a + b },

		// Template usage: {{join .Peers ", "}}
		"join": func(elems []string, sep string) string { return strings.Join(elems, sep) },

		// Template usage: {{trim .Background}}
		"trim": strings.TrimSpace,

		// indent prefixes every non-empty line of s.
		// Template usage: {{indent "    " .Bias}}
		"indent": func(prefix, s string) string {
			lines := strings.Split(strings.TrimSpace(s), "\n")
			for i, l := range lines {
				l = strings.TrimSpace(l)
				if l != "" {
					lines[i] = prefix + l
				} else {
					lines[i] = ""
				}
			}
			return strings.Join(lines, "\n")
		},

		// truncate limits s to n bytes, ending in "..." when cut.
		// Template usage: {{truncate .History 4000}}
		"truncate": func(s string, n int) string {
			if n <= 0 {
				return ""
			}
			if len(s) <= n {
				return s
			}
			if n > 3 {
				return s[:n-3] + "..."
			}
			return s[:n]
		},

		// last reports whether i is the final index of a slice of length n.
		// Template usage: {{if not (last $i (len .Criteria))}},{{end}}
		"last": func(i, n int) bool { return i == n-1 },
	}
}
