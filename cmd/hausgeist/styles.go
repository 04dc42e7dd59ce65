package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hausgeist-ai/hausgeist/pkg/styles"
)

func newStylesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List the registered generation styles",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := styles.Load("")
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tREFERENCE IMAGERY")
			for _, def := range registry.All() {
				ref := "text only"
				if def.UseReference {
					ref = "grounded"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", def.ID, def.DisplayName, ref)
			}
			return w.Flush()
		},
	}
}
