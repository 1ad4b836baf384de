package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/deepgram/wayfinder/internal/app"
	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/internal/search"
	"github.com/spf13/cobra"
)

var (
	searchLatitude  float64
	searchLongitude float64
	searchRadius    float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run an enhanced search with staged progress",
	Long: `Run an enhanced search. Progress is reported in stages while the backend
works; press Ctrl-C to cancel.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a := app.New(cfg, app.Options{})
		defer a.Close()

		req := protocol.SearchRequest{
			Query:     strings.Join(args, " "),
			Latitude:  searchLatitude,
			Longitude: searchLongitude,
			RadiusKM:  searchRadius,
		}

		resp, err := a.Search(ctx, req, func(ev search.Event) {
			fmt.Fprintln(out, renderProgress(ev))
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, sectionStyle.Render(resp.Query))
		fmt.Fprintln(out, resp.Summary)
		for _, tip := range resp.Tips {
			fmt.Fprintln(out, successStyle.Render("•"), tip)
		}
		fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("answered in %.1fs", resp.ElapsedSeconds)))
		return nil
	},
}

func init() {
	searchCmd.Flags().Float64Var(&searchLatitude, "lat", 0, "Latitude to search around")
	searchCmd.Flags().Float64Var(&searchLongitude, "lon", 0, "Longitude to search around")
	searchCmd.Flags().Float64VarP(&searchRadius, "radius", "r", 5, "Search radius in kilometres")
	rootCmd.AddCommand(searchCmd)
}
