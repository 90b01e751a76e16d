package prompt

// InitMessage is sent to a freshly launched session before the starter prompt.
const InitMessage = `You are the project manager for {project_name}.

Template: {template_name}
Repository: {github_repo}
Requested at: {timestamp}

Read the requirements in /docs and PROGRESS_TRACKER.md, then plan the work as
parallel tasks with clear owners. Extend the template instead of rebuilding it.
Phase 1 starts now; later phases will be announced here on a timer.`

// DefaultPhaseMessages holds the transition text for each phase of the default plan.
var DefaultPhaseMessages = map[int]string{
	1: `Phase {phase_num}: {phase_name} for {project_name}.
Study the template structure and the /docs requirements. Record the integration
plan in PROGRESS_TRACKER.md and get the dev server running before writing features.`,

	2: `Time for Phase {phase_num}: {phase_name} on {project_name}.
Wrap up setup work and move to the core features listed in PROGRESS_TRACKER.md.
Split the features across parallel agents, keep the data layer on Prisma, and
check items off the tracker as they land.`,

	3: `Phase {phase_num}: {phase_name} for {project_name}.
Core features should be working now. Add the secondary features and integrations
from the requirements, wire them into the existing UI, and keep the tracker current.`,

	4: `Phase {phase_num}: {phase_name} for {project_name}.
Stop adding scope. Fix bugs, tighten the UI, handle empty and error states, and run
the build and tests until they pass cleanly.`,

	5: `Final phase {phase_num}: {phase_name} for {project_name}.
Review every tracker item, make sure the build passes, update the README with setup
steps, and commit and push the finished work.`,
}

// TestingHookMessage is echoed when the phase 2 testing hook fires.
const TestingHookMessage = "Starting testing server for {project_name}"
