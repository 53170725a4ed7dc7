package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"meetflow/internal/calendar"
)

func newSlotsCommand(c *cli) *cobra.Command {
	var (
		duration int
		days     int
		limit    int
		date     string
		seedPath string
	)
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List free working-hours slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(); err != nil {
				return err
			}
			ctx := cmd.Context()
			app, err := buildContainer(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close(context.Background()) }()

			if seedPath != "" {
				if _, err := seedCalendar(ctx, app.store, seedPath); err != nil {
					return err
				}
			}
			if days <= 0 {
				days = c.cfg.Pipeline.SlotSearchDays
			}

			now := time.Now()
			events, err := app.store.ListEvents(ctx, calendar.Query{From: now, To: now.AddDate(0, 0, days+1)})
			if err != nil {
				return fmt.Errorf("list calendar events: %w", err)
			}
			query := calendar.SlotQuery{
				DurationMinutes: duration,
				DaysAhead:       days,
				MaxSlots:        limit,
				Hours:           app.hours,
				Now:             now,
				NotBefore:       now,
			}
			var slots []calendar.TimeSlot
			if date != "" {
				day, err := time.ParseInLocation("2006-01-02", date, app.hours.Location)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				query.MaxSlots = 0
				slots = calendar.SlotsOn(calendar.FindSlots(events, query), day, app.hours.Location)
				if limit > 0 && len(slots) > limit {
					slots = slots[:limit]
				}
			} else {
				slots = calendar.FindSlots(events, query)
			}

			out := cmd.OutOrStdout()
			if len(slots) == 0 {
				fmt.Fprintln(out, yellow("No free slots found"))
				return nil
			}
			for _, s := range slots {
				fmt.Fprintf(out, "%s %s\n", green("•"), s.String())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&duration, "duration", 60, "Slot length in minutes")
	cmd.Flags().IntVar(&days, "days", 0, "Days to search (default pipeline.slot_search_days)")
	cmd.Flags().IntVar(&limit, "max", 10, "Maximum slots to print")
	cmd.Flags().StringVar(&date, "date", "", "Only slots on this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&seedPath, "seed", "", "JSON file of calendar events to load first")
	return cmd
}

// seedCalendar loads a JSON array of events into store.
func seedCalendar(ctx context.Context, store calendar.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var events []calendar.NewEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return 0, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for i, ev := range events {
		if _, err := store.CreateEvent(ctx, ev); err != nil {
			return i, fmt.Errorf("seed event %d: %w", i, err)
		}
	}
	return len(events), nil
}
