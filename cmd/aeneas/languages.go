package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rschmaelzle/aeneas/internal/language"
)

func newLanguagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "languages",
		Short:   "List the languages accepted by the pure engine",
		Example: `aeneas languages`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tESPEAK")
			for _, info := range language.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", info.Code, info.Name, info.Espeak)
			}
			return w.Flush()
		},
	}
}
