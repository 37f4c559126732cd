package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/onecall/internal/models"
	"github.com/zulandar/onecall/internal/registry"
)

func newDistrictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "districts",
		Short: "Notification district registry commands",
	}

	cmd.AddCommand(newDistrictsListCmd())
	cmd.AddCommand(newDistrictsShowCmd())
	return cmd
}

func newDistrictsListCmd() *cobra.Command {
	var (
		districtsFile string
		state         string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known notification districts",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(districtsFile)
			if err != nil {
				return fmt.Errorf("load districts: %w", err)
			}

			var districts []*models.District
			if state != "" {
				districts = reg.ByState(state)
			} else {
				districts = reg.All()
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATE\tNAME\tMETHODS")
			for _, d := range districts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.State, d.Name, strings.Join(d.Methods, ","))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&districtsFile, "districts", "", "path to a districts YAML file (overrides the built-in registry)")
	cmd.Flags().StringVar(&state, "state", "", "filter by two-letter state code")
	return cmd
}

func newDistrictsShowCmd() *cobra.Command {
	var districtsFile string

	cmd := &cobra.Command{
		Use:   "show <district-id>",
		Short: "Show one district in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(districtsFile)
			if err != nil {
				return fmt.Errorf("load districts: %w", err)
			}
			d, err := reg.GetByID(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", d.Name, d.ID)
			fmt.Fprintf(out, "  State:    %s\n", d.State)
			fmt.Fprintf(out, "  Methods:  %s\n", strings.Join(d.Methods, ", "))
			if d.WebPortal != "" {
				fmt.Fprintf(out, "  Portal:   %s\n", d.WebPortal)
			}
			if d.Phone != "" {
				fmt.Fprintf(out, "  Phone:    %s\n", d.Phone)
			}
			if d.AltPhone != "" {
				fmt.Fprintf(out, "  Alt:      %s\n", d.AltPhone)
			}
			if d.Email != "" {
				fmt.Fprintf(out, "  Email:    %s\n", d.Email)
			}
			if d.Notes != "" {
				fmt.Fprintf(out, "  Notes:    %s\n", d.Notes)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&districtsFile, "districts", "", "path to a districts YAML file (overrides the built-in registry)")
	return cmd
}
