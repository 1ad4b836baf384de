package main

import (
	"fmt"

	"github.com/deepgram/wayfinder/internal/client"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		c := client.NewFromConfig(cfg.Client)

		fmt.Fprintln(out, sectionStyle.Render("Backend health"))
		fmt.Fprintln(out, infoStyle.Render(cfg.Client.APIURL))

		health, err := c.Health(cmd.Context())
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("✗ Unreachable:"), err)
			return err
		}
		fmt.Fprintln(out, successStyle.Render("✓ Health: "+health.Status))

		status, err := c.Status(cmd.Context())
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("✗ Status unavailable:"), err)
			return err
		}
		fmt.Fprintf(out, "  Connections:   %d\n", status.Connections)
		fmt.Fprintf(out, "  History store: %s\n", status.HistoryStore)
		fmt.Fprintf(out, "  Responder:     %s\n", status.Responder)
		fmt.Fprintf(out, "  Uptime:        %.0fs\n", status.UptimeSeconds)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
