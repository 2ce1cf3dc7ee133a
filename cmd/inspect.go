package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/stitch/internal/render"
)

var inspectFormat string

var inspectCmd = &cobra.Command{
	Use:   "inspect <fragment>",
	Short: "List the tokens of a fragment",
	Long: `List every {{ name }} and {{ name | default }} token of a fragment in
order of appearance. Use "-" to read the fragment from stdin.

Examples:
  stitch inspect components/ui/card.html
  stitch inspect card.html --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "table", "Output format (table, json)")
}

type tokenOutput struct {
	Name       string `json:"name"`
	Default    string `json:"default,omitempty"`
	HasDefault bool   `json:"has_default"`
	Raw        string `json:"raw"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read fragment: %w", err)
	}

	tokens := render.Tokens(string(data))
	out := cmd.OutOrStdout()

	switch inspectFormat {
	case "json":
		list := make([]tokenOutput, len(tokens))
		for i, t := range tokens {
			list[i] = tokenOutput{Name: t.Name, Default: t.Default, HasDefault: t.HasDefault, Raw: t.Raw}
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(list)
	case "table":
		if len(tokens) == 0 {
			fmt.Fprintln(out, "No tokens found.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDEFAULT")
		for _, t := range tokens {
			def := "-"
			if t.HasDefault {
				def = t.Default
			}
			fmt.Fprintf(w, "%s\t%s\n", t.Name, def)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json)", inspectFormat)
	}
}
