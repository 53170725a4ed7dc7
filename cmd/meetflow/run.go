package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"meetflow/internal/orchestrator"
)

type runOptions struct {
	noExecute bool
	asJSON    bool
	quiet     bool
	seedPath  string
}

func newRunCommand(c *cli) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <transcript-file|->",
		Short: "Process one meeting transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(); err != nil {
				return err
			}
			transcript, err := readTranscript(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runTranscript(ctx, c, transcript, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&opts.noExecute, "no-execute", false, "Plan actions without touching the calendar")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Hide stage progress")
	cmd.Flags().StringVar(&opts.seedPath, "seed", "", "JSON file of calendar events to load before the run")
	return cmd
}

func readTranscript(arg string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if arg == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", orchestrator.ErrEmptyTranscript
	}
	return text, nil
}

func runTranscript(ctx context.Context, c *cli, transcript string, opts *runOptions, stdout, stderr io.Writer) error {
	app, err := buildContainer(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.Background()) }()

	if opts.seedPath != "" {
		n, err := seedCalendar(ctx, app.store, opts.seedPath)
		if err != nil {
			return err
		}
		app.logger.Info("Seeded %d calendar events from %s", n, opts.seedPath)
	}

	var wg sync.WaitGroup
	stopProgress := func() {}
	if !opts.quiet && !opts.asJSON {
		sub := app.broadcaster.Subscribe()
		stopProgress = sub.Close
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range sub.Events() {
				printProgress(stderr, ev)
				if ev.Type.Terminal() {
					return
				}
			}
		}()
	}

	res, runErr := app.orchestrator.Run(ctx, orchestrator.Input{
		Transcript:  transcript,
		AutoExecute: c.cfg.Pipeline.AutoExecute && !opts.noExecute,
	})
	// Publish is synchronous, so every event of the run is already queued.
	stopProgress()
	wg.Wait()
	if errors.Is(runErr, orchestrator.ErrEmptyTranscript) {
		return runErr
	}

	if opts.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printResult(stdout, res)
	}
	if runErr != nil {
		return fmt.Errorf("workflow %s: %w", res.WorkflowID, runErr)
	}
	return nil
}
