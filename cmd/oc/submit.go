package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/onecall/internal/models"
)

func newSubmitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "submit <request-id>",
		Short: "Submit a stored locate request to its district",
		Long: `Runs one submission episode for a pending or retried request, walking the
district's channel fallback chain until a channel succeeds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func runSubmit(cmd *cobra.Command, configPath, requestID string) error {
	out := cmd.OutOrStdout()

	a, err := loadApp(configPath)
	if err != nil {
		return err
	}

	req, err := a.store.Get(requestID)
	if err != nil {
		return err
	}
	if req.Status == models.StatusFailed {
		if req, err = a.store.Retry(requestID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Retrying failed request %s (attempt %d)\n", requestID, req.RetryCount+1)
	}

	district, err := a.registry.GetByID(req.DistrictID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Submitting request %s to %s\n", req.ID, district.Name)

	result, err := a.orchestrator.Submit(cmd.Context(), req, district)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Submitted. Ticket: %s", result.TicketNumber)
	if result.ConfirmationNumber != "" {
		fmt.Fprintf(out, " (confirmation %s)", result.ConfirmationNumber)
	}
	fmt.Fprintln(out)
	return nil
}
