package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/credroute/internal/config"
	"github.com/systmms/credroute/internal/metrics"
	"github.com/systmms/credroute/pkg/credential"
)

// doctorProbeService names the item doctor searches for. It is never created.
const doctorProbeService = "credroute-doctor"

func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check store availability and configuration",
		Long: `Verify that the configured stores can be reached.

This command checks:
- Configuration file validity
- The legacy store database
- The modern store keyring and whether it can prompt for unlock
- A search routed through every configured store`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			results := runChecks(context.Background(), s)
			out := cmd.OutOrStdout()
			displayHealthResults(out, results)

			if cfg.Definition.Metrics.Enabled {
				_, _ = fmt.Fprintln(out, "\nMetrics:")
				if err := metrics.WriteSummary(out); err != nil {
					return fmt.Errorf("failed to gather metrics: %w", err)
				}
			}

			healthy := 0
			for _, result := range results {
				if result.Status != "error" {
					healthy++
				}
			}
			_, _ = fmt.Fprintf(out, "\nSummary: %d/%d checks passed\n", healthy, len(results))
			if healthy < len(results) {
				return fmt.Errorf("some checks failed")
			}
			return nil
		},
	}

	return cmd
}

// CheckResult is the outcome of one doctor check.
type CheckResult struct {
	Name    string
	Status  string // healthy, warning, error, disabled
	Message string
}

func runChecks(ctx context.Context, s *session) []CheckResult {
	var results []CheckResult

	if s.legacy != nil {
		results = append(results, CheckResult{Name: "legacy store", Status: "healthy", Message: "database opened"})
	} else {
		results = append(results, CheckResult{Name: "legacy store", Status: "disabled"})
	}

	if s.modern != nil {
		if err := s.modern.Unlock(ctx); err != nil {
			results = append(results, CheckResult{Name: "modern store", Status: "error", Message: err.Error()})
		} else {
			results = append(results, CheckResult{Name: "modern store", Status: "healthy", Message: "keyring reachable"})
		}
		if s.probe.Available() {
			results = append(results, CheckResult{Name: "unlock prompt", Status: "healthy", Message: "interactive session"})
		} else {
			results = append(results, CheckResult{Name: "unlock prompt", Status: "warning", Message: "no prompt possible; locked keyrings fail"})
		}
	} else {
		results = append(results, CheckResult{Name: "modern store", Status: "disabled"})
	}

	_, err := s.router.Find(ctx, credential.AttributeMap{
		credential.AttrClass:          credential.ClassGenericPassword,
		"service":                     doctorProbeService,
		credential.AttrSynchronizable: credential.SynchronizableAny,
		credential.UseAuthUI:          credential.AuthUIFail,
	})
	switch {
	case err == nil, errors.Is(err, credential.ErrItemNotFound):
		results = append(results, CheckResult{Name: "routed search", Status: "healthy", Message: "every store answered"})
	default:
		results = append(results, CheckResult{Name: "routed search", Status: "error", Message: err.Error()})
	}

	return results
}

// displayHealthResults shows check results in a formatted table
func displayHealthResults(out io.Writer, results []CheckResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "CHECK\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "-----\t------\t-------\n")

	for _, result := range results {
		status := result.Status
		switch result.Status {
		case "healthy":
			status = "✓ " + status
		case "error":
			status = "✗ " + status
		case "warning":
			status = "! " + status
		default:
			status = "- " + status
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", result.Name, status, result.Message)
	}

	_ = w.Flush()
}
