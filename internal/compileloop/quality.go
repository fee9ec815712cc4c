package compileloop

import (
	"fmt"
	"regexp"
	"strings"
)

var beginEnvRe = regexp.MustCompile(`\\begin\{([^}]*)\}`)
var endEnvRe = regexp.MustCompile(`\\end\{([^}]*)\}`)

// StructuralIssues screens LaTeX source for problems that reliably break
// compilation. It is a coarse net for when the compiler itself produced
// no usable diagnostics, not a validator.
func StructuralIssues(source string) []string {
	var issues []string

	if !strings.Contains(source, `\documentclass`) {
		issues = append(issues, `missing \documentclass declaration`)
	}

	opens, closes := countBraces(source)
	if opens != closes {
		issues = append(issues, fmt.Sprintf("unbalanced braces: %d opening vs %d closing", opens, closes))
	}

	begins := envCounts(beginEnvRe, source)
	ends := envCounts(endEnvRe, source)
	for env, n := range begins {
		if ends[env] != n {
			issues = append(issues, fmt.Sprintf(`environment %q opened %d times but closed %d times`, env, n, ends[env]))
		}
	}
	for env, n := range ends {
		if _, ok := begins[env]; !ok {
			issues = append(issues, fmt.Sprintf(`environment %q closed %d times but never opened`, env, n))
		}
	}

	if begins["document"] == 0 {
		issues = append(issues, `missing \begin{document}`)
	}
	return issues
}

// countBraces counts unescaped braces.
func countBraces(source string) (opens, closes int) {
	escaped := false
	for _, r := range source {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '{':
			opens++
		case '}':
			closes++
		}
	}
	return opens, closes
}

func envCounts(re *regexp.Regexp, source string) map[string]int {
	counts := make(map[string]int)
	for _, m := range re.FindAllStringSubmatch(source, -1) {
		counts[m[1]]++
	}
	return counts
}
