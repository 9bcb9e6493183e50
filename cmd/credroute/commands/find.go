package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/systmms/credroute/internal/config"
	dserrors "github.com/systmms/credroute/internal/errors"
)

func NewFindCommand(cfg *config.Config) *cobra.Command {
	var (
		query      queryFlags
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find credentials in the configured stores",
		Long: `Search the legacy and modern stores for items matching the given attributes.

Results from both stores are merged, modern items first. By default the matched
items' attributes are printed; --return data prints the raw secret, suitable for
scripting.

Examples:
  # Print the password of one item
  credroute find --class generic_password --attr service=mail --attr account=alice --return data

  # List every internet password for a server as JSON
  credroute find --class internet_password --attr server=example.com --limit all --json

  # Include items that sync between devices
  credroute find --class generic_password --attr synchronizable=any --limit all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := query.attributes()
			if err != nil {
				return err
			}

			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.router.Find(context.Background(), attrs)
			if err != nil {
				return dserrors.CredentialError("find", err)
			}
			return writeResult(cmd.OutOrStdout(), res, jsonOutput)
		},
	}

	query.bind(cmd)
	query.bindSearch(cmd)
	query.bindReturn(cmd, []string{"attributes"})
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
