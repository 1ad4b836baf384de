package main

import (
	"fmt"

	"github.com/deepgram/wayfinder/internal/app"
	"github.com/spf13/cobra"
)

var historyClear bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print or clear the history of the configured session",
	Long: `Print the history of the session bound to WAYFINDER_AUTH_TOKEN. Without a
configured token a fresh anonymous session is used, which has no history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		a := app.New(cfg, app.Options{})
		defer a.Close()

		if err := a.Start(cmd.Context()); err != nil {
			return err
		}

		if historyClear {
			if err := a.ClearHistory(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, successStyle.Render("✓ History cleared"))
			return nil
		}

		if err := a.History(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(out, sectionStyle.Render("Session "+a.SessionID()))
		renderMessages(out, a.Messages().Messages())
		return nil
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Clear the history instead of printing it")
	rootCmd.AddCommand(historyCmd)
}
