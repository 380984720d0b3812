package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fundsavy/fundsavy"
	"github.com/fundsavy/fundsavy/internal/errors"
	"github.com/fundsavy/fundsavy/pkg/chat"
)

func watchCmd(flags *globalFlags) *cobra.Command {
	var (
		source  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <group-id>...",
		Short: "Show groups as the chat screen sees them",
		Long: `Open each group in a chat screen and print every state it goes
through: loading, then the group header or the error panel.

Examples:
  fundsavy watch 1 2
  fundsavy watch --source=http://localhost:8000 1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if source != "" {
				cfg.Groups.Source = source
			}
			if timeout > 0 {
				cfg.Groups.Timeout = fundsavy.Duration(timeout)
			}

			app, err := fundsavy.New(cfg, fundsavy.WithLogger(newLogger(cfg.Log, os.Stderr)))
			if err != nil {
				return err
			}
			defer app.Close()

			screen := app.NewScreen()
			defer screen.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runWatch(ctx, screen, args, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Remote groups source (http(s):// or s3://)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Retrieval timeout (default from config)")

	return cmd
}

// runWatch opens each group in turn and prints its views until it is shown
// or has failed.
func runWatch(ctx context.Context, screen *chat.Screen, ids []string, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	views := screen.Views(ctx)

	seen := make(map[string]bool)
	var failed []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		screen.Open(id)
	wait:
		for {
			select {
			case v, ok := <-views:
				if !ok {
					return ctx.Err()
				}
				if v.GroupID != id {
					continue
				}
				printView(w, v)
				switch v.State {
				case "failure":
					failed = append(failed, id)
					break wait
				case "success":
					break wait
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if len(failed) > 0 {
		return errors.New("E201").WithDetail("Failed groups: " + strings.Join(failed, ", "))
	}
	return nil
}

func printView(w io.Writer, v chat.View) {
	switch {
	case v.Loading:
		fmt.Fprintf(w, "… group %s loading\n", v.GroupID)
	case v.Error != "":
		fmt.Fprintf(w, "\033[31m✗\033[0m group %s: %s\n", v.GroupID, v.Error)
	case v.Title != "":
		fmt.Fprintf(w, "\033[32m✓\033[0m %s (%s)\n", v.Title, v.Subtitle)
		if v.Banner != "" {
			info(w, "%s", v.Banner)
		}
	}
}
