package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/deepgram/wayfinder/internal/app"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long: `Start an interactive chat. Replies stream in as they are generated.

Commands:
  /history   reload and print the session history
  /clear     clear the session history
  /end       end the session
  /quit      leave`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func runChat(ctx context.Context, in io.Reader, out io.Writer) error {
	printer := newStreamPrinter(out)

	a := app.New(cfg, app.Options{
		OnError: func(err error) {
			fmt.Fprintln(out, errorStyle.Render("✗"), err)
			printer.abandon()
		},
	})
	defer a.Close()

	unwatch := a.Messages().Watch(printer.update)
	defer unwatch()

	if err := a.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, successStyle.Render("✓ Connected"), dimStyle.Render("session "+a.SessionID()))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, userStyle.Render("you: "))

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/history":
			if err := a.History(ctx); err != nil {
				fmt.Fprintln(out, errorStyle.Render("✗"), err)
				continue
			}
			renderMessages(out, a.Messages().Messages())
			continue
		case "/clear":
			if err := a.ClearHistory(ctx); err != nil {
				fmt.Fprintln(out, errorStyle.Render("✗"), err)
				continue
			}
			fmt.Fprintln(out, successStyle.Render("✓ History cleared"))
			continue
		case "/end":
			if err := a.Session().EndSession(""); err != nil {
				fmt.Fprintln(out, errorStyle.Render("✗"), err)
			}
			continue
		}

		done := printer.expect()
		if err := a.Send(line); err != nil {
			printer.abandon()
			fmt.Fprintln(out, errorStyle.Render("✗"), err)
			if errors.Is(err, app.ErrNotStarted) {
				return err
			}
			continue
		}

		select {
		case <-done:
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		}
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
