package prompt

import (
	"fmt"
	"strings"
)

// TrackerSummary is the part of a PROGRESS_TRACKER.md that seeds the starter prompt.
type TrackerSummary struct {
	Title         string
	PhaseOneItems []string
}

// ParseTracker extracts the `# Project:` title and the unchecked items listed
// under the `## Phase 1:` heading.
func ParseTracker(tracker string) TrackerSummary {
	summary := TrackerSummary{Title: "Project"}

	inPhaseOne := false
	titleFound := false
	for _, line := range strings.Split(tracker, "\n") {
		line = strings.TrimRight(line, "\r")

		if !titleFound && strings.HasPrefix(line, "# Project:") {
			if title := strings.TrimSpace(strings.TrimPrefix(line, "# Project:")); title != "" {
				summary.Title = title
			}
			titleFound = true
			continue
		}

		switch {
		case strings.Contains(line, "## Phase 1:"):
			inPhaseOne = true
		case inPhaseOne && strings.HasPrefix(line, "##"):
			inPhaseOne = false
		case inPhaseOne && strings.HasPrefix(line, "- [ ]"):
			summary.PhaseOneItems = append(summary.PhaseOneItems, strings.TrimSpace(strings.TrimPrefix(line, "- [ ]")))
		}
	}
	return summary
}

// StarterPrompt builds the first working instruction for a session from its
// progress tracker.
func StarterPrompt(tracker string) string {
	summary := ParseTracker(tracker)

	var b strings.Builder
	fmt.Fprintf(&b, "Let's adapt the template to build %s.\n\n", summary.Title)
	b.WriteString("Work in parallel from the start:\n")
	b.WriteString("1. Have every agent read the /docs folder before touching code.\n")
	b.WriteString("2. Give each agent a distinct slice of the work so nothing overlaps.\n")
	b.WriteString("3. Coordinate through PROGRESS_TRACKER.md and tick items off as they finish.\n\n")
	b.WriteString("The template already ships auth, a database layer and UI components. ")
	b.WriteString("Extend them rather than rebuilding, and keep all persistence on Prisma with SQLite. ")

	if len(summary.PhaseOneItems) > 0 {
		first := summary.PhaseOneItems[0]
		if !strings.Contains(strings.ToLower(first), "template") {
			fmt.Fprintf(&b, "Phase 1 should begin by analysing the template, not %s. ", strings.ToLower(first))
		}
	}

	b.WriteString("Review PROGRESS_TRACKER.md before starting.")
	return b.String()
}
