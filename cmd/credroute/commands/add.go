package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/systmms/credroute/internal/config"
	dserrors "github.com/systmms/credroute/internal/errors"
	"github.com/systmms/credroute/internal/secure"
	"github.com/systmms/credroute/pkg/credential"
)

func NewAddCommand(cfg *config.Config) *cobra.Command {
	var (
		query      queryFlags
		dataStdin  bool
		keychain   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a credential",
		Long: `Store a new item. The legacy store is preferred; items marked
synchronizable, or requests with --backend modern, go to the modern store.

Examples:
  # Add a password read from stdin
  echo -n 'hunter2' | credroute add --class generic_password --attr service=mail --attr account=alice --data-stdin

  # Add a synchronizable password and print its persistent reference
  credroute add --class generic_password --attr service=mail --attr account=bob \
    --attr synchronizable:bool=true --data-stdin --return persistent_ref < secret.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := query.attributes()
			if err != nil {
				return err
			}
			if keychain != "" {
				attrs[credential.UseKeychain] = keychain
			}
			if dataStdin {
				if err := readPayload(cmd, attrs); err != nil {
					return err
				}
			}

			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.router.Add(context.Background(), attrs)
			if err != nil {
				return dserrors.CredentialError("add", err)
			}
			s.mutated()
			if res == nil {
				s.logger.Info("Item added")
				return nil
			}
			return writeResult(cmd.OutOrStdout(), res, jsonOutput)
		},
	}

	query.bind(cmd)
	query.bindReturn(cmd, nil)
	cmd.Flags().BoolVar(&dataStdin, "data-stdin", false, "Read the secret payload from stdin")
	cmd.Flags().StringVar(&keychain, "keychain", "", "Legacy keychain to add the item to")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// readPayload reads stdin into a sealed buffer and sets it as the item's data.
func readPayload(cmd *cobra.Command, attrs credential.AttributeMap) error {
	p, err := secure.ReadPayload(cmd.InOrStdin())
	if err != nil {
		return dserrors.UserError{
			Message:    "Failed to read the payload from stdin",
			Suggestion: "Pipe the secret into the command, or drop --data-stdin",
			Err:        err,
		}
	}
	defer p.Destroy()

	data, err := p.Copy()
	if err != nil {
		return err
	}
	attrs[credential.ValueData] = data
	return nil
}
