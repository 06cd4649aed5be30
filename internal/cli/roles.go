package cli

import (
	"fmt"
	"io"

	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/persona"
	"github.com/spf13/cobra"
)

func newRolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List the available personas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// No validation: listing personas needs no backend or channel.
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			printRoles(cmd.OutOrStdout(), catalog)
			return nil
		},
	}
}

// printRoles writes one persona per line and marks the default with '*'.
func printRoles(w io.Writer, catalog *persona.Catalog) {
	def := persona.Normalize(catalog.Default().Name)
	for _, name := range catalog.Names() {
		mark := " "
		if persona.Normalize(name) == def {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s\n", mark, name)
	}
}
