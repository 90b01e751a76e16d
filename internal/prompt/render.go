package prompt

import (
	"sort"
	"strconv"
	"strings"
)

// Placeholder keys understood by Render.
const (
	KeyProjectName  = "project_name"
	KeyPhaseNum     = "phase_num"
	KeyPhaseName    = "phase_name"
	KeyTemplateName = "template_name"
	KeyGitHubRepo   = "github_repo"
	KeyTimestamp    = "timestamp"
)

// Vars maps placeholder names to their values.
type Vars map[string]string

// PhaseVars builds the variables used by phase transition messages.
func PhaseVars(projectName string, phaseNum int, phaseName string) Vars {
	return Vars{
		KeyProjectName: projectName,
		KeyPhaseNum:    strconv.Itoa(phaseNum),
		KeyPhaseName:   phaseName,
	}
}

// Render substitutes {name} placeholders. Unknown placeholders are left as-is.
func Render(tmpl string, vars Vars) string {
	if len(vars) == 0 || !strings.Contains(tmpl, "{") {
		return tmpl
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Placeholders lists the distinct {name} tokens found in tmpl, in order of
// first appearance.
func Placeholders(tmpl string) []string {
	var out []string
	seen := make(map[string]bool)
	for {
		start := strings.IndexByte(tmpl, '{')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(tmpl[start+1:], '}')
		if end < 0 {
			return out
		}
		name := tmpl[start+1 : start+1+end]
		if isIdent(name) && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
		tmpl = tmpl[start+1+end+1:]
	}
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
