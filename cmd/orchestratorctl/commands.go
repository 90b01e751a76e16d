package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/phase"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/state"
)

func newHealthCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			h, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), h, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "status: %s\nport: %d\ncooldown: %g minutes\n", h.Status, h.Port, h.CooldownMinutes)
				return err
			})
		},
	}
}

func newStateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show dedup and cooldown state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			snap, err := c.State(cmd.Context())
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), snap, func(w io.Writer) error {
				fmt.Fprintf(w, "processed requests: %d\n", snap.ProcessedRequests)
				fmt.Fprintf(w, "project cooldowns:  %d\n", snap.ProjectCooldowns)
				fmt.Fprintf(w, "cooldown window:    %g minutes\n", snap.CooldownMinutes)
				if len(snap.ActiveCooldowns) == 0 {
					return nil
				}
				names := make([]string, 0, len(snap.ActiveCooldowns))
				for name := range snap.ActiveCooldowns {
					names = append(names, name)
				}
				sort.Strings(names)

				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "\nPROJECT\tREMAINING (MIN)")
				for _, name := range names {
					fmt.Fprintf(tw, "%s\t%g\n", name, snap.ActiveCooldowns[name])
				}
				return tw.Flush()
			})
		},
	}
}

func newStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <project>",
		Short: "Show session, cooldown and phase status for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), st, func(w io.Writer) error {
				fmt.Fprintf(w, "project:        %s\n", st.ProjectName)
				fmt.Fprintf(w, "session exists: %t\n", st.SessionExists)
				fmt.Fprintf(w, "in cooldown:    %t", st.InCooldown)
				if st.InCooldown {
					fmt.Fprintf(w, " (%g minutes left)", st.CooldownRemainingMinutes)
				}
				fmt.Fprintln(w)
				if st.StateFile != nil {
					fmt.Fprintf(w, "params file:    %s\n", *st.StateFile)
				}
				if st.LastRun != nil {
					fmt.Fprintf(w, "last run:       %s (%s, template %s)\n", st.LastRun.ID, st.LastRun.Status, orDash(st.LastRun.TemplateName))
				}
				if len(st.Transitions) == 0 {
					return nil
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "\nPHASE\tKIND\tFIRE AT\tPID\tPENDING")
				for _, t := range st.Transitions {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\n", t.Phase, t.Kind, t.FireAt.Local().Format(time.DateTime), t.Handle.PID, t.Pending)
				}
				return tw.Flush()
			})
		},
	}
}

func newCleanupCmd(opts *cliOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Drop dedup, cooldown and run records older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 0 || days > state.MaxRetentionDays {
				return fmt.Errorf("--days must be between 0 and %d", state.MaxRetentionDays)
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			res, err := c.Cleanup(cmd.Context(), days)
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "removed %d requests, %d cooldowns, %d runs older than %d days\n",
					res.RemovedRequests, res.RemovedCooldowns, res.RemovedRuns, res.Days)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (default: server RETENTION_DAYS)")
	return cmd
}

func newRescheduleCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule <project> <phase> <delay-minutes>",
		Short: "Replace a pending phase transition with one firing after the given delay",
		Example: `  orchestratorctl reschedule demo-app 3 10
  orchestratorctl reschedule demo-app 5 0.5`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			phaseNum, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid phase %q: %w", args[1], err)
			}
			delay, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid delay %q: %w", args[2], err)
			}
			if math.IsNaN(delay) || delay < 0 || delay > phase.MaxRescheduleDelay.Minutes() {
				return fmt.Errorf("invalid delay %q: must be between 0 and %.0f minutes", args[2], phase.MaxRescheduleDelay.Minutes())
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			t, err := c.Reschedule(cmd.Context(), args[0], phaseNum, delay)
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), t, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "phase %d (%s) for %s now fires at %s (pid %d)\n",
					t.Phase, t.PhaseName, t.Project, t.FireAt.Local().Format(time.DateTime), t.Handle.PID)
				return err
			})
		},
	}
}

func newPhasesCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "phases",
		Short: "List the phase plan with start offsets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			phases, err := c.Phases(cmd.Context())
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), phases, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "PHASE\tNAME\tDURATION (MIN)\tSTARTS AT (MIN)")
				for _, p := range phases {
					fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", p.Number, p.Name, p.DurationMinutes, p.StartOffsetMinutes)
				}
				return tw.Flush()
			})
		},
	}
}

func newSessionsCmd(opts *cliOptions) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List session-creation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			runs, err := c.Sessions(cmd.Context(), project)
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), runs, func(w io.Writer) error {
				if len(runs) == 0 {
					_, err := fmt.Fprintln(w, "no runs")
					return err
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPROJECT\tSTATUS\tTEMPLATE\tCREATED")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.ProjectName, r.Status, orDash(r.TemplateName), r.CreatedAt.Local().Format(time.DateTime))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Only show runs for this project")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
