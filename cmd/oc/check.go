package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/onecall/internal/poller"
)

func newCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check <request-id>",
		Short: "Check the current ticket status for a submitted request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func runCheck(cmd *cobra.Command, configPath, requestID string) error {
	out := cmd.OutOrStdout()

	a, err := loadApp(configPath)
	if err != nil {
		return err
	}

	p, err := poller.New(poller.Opts{
		Store:    a.store,
		Registry: a.registry,
		Checker:  poller.NewWebStatusChecker(a.chrome),
	})
	if err != nil {
		return err
	}

	result, err := p.CheckRequest(cmd.Context(), requestID)
	if err != nil {
		return err
	}

	if result.Status == "" {
		fmt.Fprintln(out, "No recognizable status found on the district portal.")
	} else {
		fmt.Fprintf(out, "Status: %s\n", result.Status)
	}
	if result.Details != "" {
		fmt.Fprintf(out, "Details: %s\n", result.Details)
	}
	fmt.Fprintf(out, "Checked at %s\n", result.CheckedAt.Format(time.RFC3339))
	return nil
}
