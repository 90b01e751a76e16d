// Command orchestratorctl is the operator CLI for the webhook orchestrator's
// admin API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/adminclient"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/config"
)

// Output formats.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

type cliOptions struct {
	url    string
	output string
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "orchestratorctl",
		Short: "Operate the ideabrow webhook orchestrator",
		Long: `orchestratorctl talks to a running orchestrator's admin API.

The server URL comes from --url or ORCHESTRATOR_URL. When ADMIN_JWT_SECRET is
set, every request carries a short-lived bearer token signed with it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case outputTable, outputJSON, outputYAML:
				return nil
			default:
				return fmt.Errorf("invalid --output %q (must be table, json or yaml)", opts.output)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.url, "url", "", "Orchestrator base URL (default: $ORCHESTRATOR_URL)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "Output format (table, json, yaml)")

	root.AddCommand(
		newHealthCmd(opts),
		newStateCmd(opts),
		newStatusCmd(opts),
		newCleanupCmd(opts),
		newRescheduleCmd(opts),
		newPhasesCmd(opts),
		newSessionsCmd(opts),
	)
	return root
}

func (o *cliOptions) client() (*adminclient.Client, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if o.url != "" {
		cfg.BaseURL = o.url
	}
	return adminclient.New(cfg), nil
}

// render writes v as json or yaml, or calls table for the default format.
func (o *cliOptions) render(w io.Writer, v any, table func(io.Writer) error) error {
	switch o.output {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return table(w)
	}
}
