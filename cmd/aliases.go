package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/stitch/internal/alias"
)

var aliasesCmd = &cobra.Command{
	Use:   "aliases",
	Short: "Show the alias table",
	Long: `Print the effective alias table in lookup order with the URL each
prefix resolves to under the module base (site.base).`,
	Args: cobra.NoArgs,
	RunE: runAliases,
}

func init() {
	rootCmd.AddCommand(aliasesCmd)
}

func runAliases(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	base, err := cfg.BaseURL()
	if err != nil {
		return err
	}
	resolver, err := alias.NewResolver(cfg.Aliases, base)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Base: %s\n\n", resolver.Base())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PREFIX\tBASE\tRESOLVES TO")
	for _, e := range resolver.Table() {
		u, err := resolver.Resolve(e.Prefix)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Prefix, e.Base, u)
	}
	return w.Flush()
}
