package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/systmms/credroute/internal/config"
	dserrors "github.com/systmms/credroute/internal/errors"
)

func NewUpdateCommand(cfg *config.Config) *cobra.Command {
	var (
		query     queryFlags
		set       []string
		dataStdin bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update every credential matching a query",
		Long: `Apply changes to every item matching the query.

Setting synchronizable migrates items between the stores: true moves matching
legacy items to the modern store, false moves matching synchronizable items
back to the legacy store.

Examples:
  # Change a label
  credroute update --class generic_password --attr service=mail --set label="work mail"

  # Replace a password from stdin
  credroute update --class generic_password --attr service=mail --attr account=alice --data-stdin

  # Start syncing a password
  credroute update --class generic_password --attr service=mail --set synchronizable:bool=true`,
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := query.attributes()
			if err != nil {
				return err
			}
			changes, err := parseAttrs("set", set)
			if err != nil {
				return err
			}
			if dataStdin {
				if err := readPayload(cmd, changes); err != nil {
					return err
				}
			}
			if len(changes) == 0 {
				return dserrors.UserError{
					Message:    "Nothing to update",
					Suggestion: "Use --set key=value or --data-stdin to describe the change",
				}
			}

			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.router.Update(context.Background(), attrs, changes); err != nil {
				return dserrors.CredentialError("update", err)
			}
			s.mutated()
			s.logger.Info("Updated")
			return nil
		},
	}

	query.bind(cmd)
	cmd.Flags().StringArrayVar(&set, "set", nil, "Change as key=value, or key:type=value")
	cmd.Flags().BoolVar(&dataStdin, "data-stdin", false, "Read the new secret payload from stdin")

	return cmd
}
