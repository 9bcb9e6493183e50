package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/systmms/credroute/internal/config"
	dserrors "github.com/systmms/credroute/internal/errors"
)

func NewDeleteCommand(cfg *config.Config) *cobra.Command {
	var query queryFlags

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every credential matching a query",
		Long: `Delete every item matching the query from the stores it targets.

Examples:
  credroute delete --class generic_password --attr service=mail --attr account=alice
  credroute delete --class certificate --attr label=old --backend legacy`,
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

			if err := s.router.Delete(context.Background(), attrs); err != nil {
				return dserrors.CredentialError("delete", err)
			}
			s.mutated()
			s.logger.Info("Deleted")
			return nil
		},
	}

	query.bind(cmd)
	return cmd
}
