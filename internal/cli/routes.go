package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dskow/devproxy/internal/admin"
	"github.com/dskow/devproxy/internal/routing"
)

func (o *rootOptions) loadTable() (*routing.Table, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return routing.FromConfig(cfg.Server.Proxy)
}

func newRoutesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the proxy rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := opts.loadTable()
			if err != nil {
				return err
			}
			rules := admin.Describe(table)

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, rules)
			}
			if len(rules) == 0 {
				fmt.Fprintln(out, "No proxy rules configured; every request goes to the default upstream.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tPREFIX\tMATCH\tTARGET\tCHANGE ORIGIN\tWS")
			for _, r := range rules {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%t\n", r.Order, r.Prefix, r.Match, r.Target, r.ChangeOrigin, r.WS)
			}
			return tw.Flush()
		},
	}
}

func newMatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "match <path>...",
		Short: "Show where request paths would be sent",
		Long: `Route each path through the configured rules without sending anything and
print the matched rule and the upstream URL.`,
		Example: `  devproxy match /api/users/1 /ai/predict /static/logo.png`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := opts.loadTable()
			if err != nil {
				return err
			}

			decisions := make([]admin.DecisionInfo, len(args))
			for i, p := range args {
				decisions[i] = admin.Explain(table, p)
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, decisions)
			}
			for _, d := range decisions {
				if d.Passthrough {
					fmt.Fprintf(out, "%s -> default upstream (no rule matched)\n", d.Path)
					continue
				}
				fmt.Fprintf(out, "%s -> %s (rule %s)\n", d.Path, d.Forward, d.Rule)
			}
			return nil
		},
	}
}
