// Package commands defines the CLI command structure and flag bindings.
//
// Command execution is delegated to handler functions in the handlers
// package.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imamik/sgsync/cmd/sgsync/handlers"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersionInfo sets the version information from main.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Root returns the root command. It has no subcommands: running it starts
// the sync.
//
// Optional flags:
//
//	--config, -c: Path to a YAML configuration file (default: $SGSYNC_CONFIG)
//	--version:    Print version information and exit
func Root() *cobra.Command {
	var (
		configPath  string
		showVersion bool
	)

	cmd := &cobra.Command{
		Use:   "sgsync",
		Short: "Sync security group ingress rules with a published CIDR list",
		Long: `Sync security group ingress rules with a published CIDR list.

sgsync fetches a list of CIDRs and makes the ingress rules of every
configured security group match it: missing CIDRs are allowed on all
protocols and CIDRs not on the list are revoked.

Configuration is read from an optional YAML file and from environment
variables, which take precedence. DRY_RUN defaults to true.

Examples:
  # Validate the changes against two groups without applying them
  IP_LIST_SOURCE=https://example.com/ips.txt \
  SECURITY_GROUP_IDS="us-east-1:sg-0123 eu-west-1:sg-0456" sgsync

  # Apply every six hours using a config file
  DRY_RUN=false REPEAT=true sgsync -c sgsync.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				printVersion(cmd)
				return nil
			}
			return handlers.Run(cmd.Context(), configPath, version)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: $SGSYNC_CONFIG)")
	cmd.Flags().BoolVar(&showVersion, "version", false, "Print version information and exit")

	return cmd
}

func printVersion(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "sgsync %s\n", version)
	fmt.Fprintf(out, "  commit: %s\n", commit)
	fmt.Fprintf(out, "  built:  %s\n", date)
}
