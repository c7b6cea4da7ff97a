package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudsync/todocal/internal/calendar"
	"github.com/cloudsync/todocal/internal/server"
	"github.com/cloudsync/todocal/internal/tools/batch"
	"github.com/cloudsync/todocal/internal/tools/calendar_tools"
	"github.com/cloudsync/todocal/internal/tools/common"
)

// eventFlags are the event body flags shared by create and update.
type eventFlags struct {
	summary     string
	start       string
	end         string
	location    string
	description string
	timeZone    string
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.summary, "summary", "", "Event title (required)")
	cmd.Flags().StringVar(&f.start, "start", "", "Start: YYYY-MM-DD for all-day, or YYYY-MM-DDTHH:MM[:SS] / RFC3339 (required)")
	cmd.Flags().StringVar(&f.end, "end", "", "End, same formats as --start. New timed events last one hour, updated ones keep their length.")
	cmd.Flags().StringVar(&f.location, "location", "", "Event location")
	cmd.Flags().StringVar(&f.description, "description", "", "Event description")
	cmd.Flags().StringVar(&f.timeZone, "tz", "", "IANA time zone for times without an offset (default: local)")
	_ = cmd.MarkFlagRequired("summary")
	_ = cmd.MarkFlagRequired("start")
}

func (f *eventFlags) args() map[string]any {
	return map[string]any{
		"summary":     f.summary,
		"start":       f.start,
		"end":         f.end,
		"location":    f.location,
		"description": f.description,
		"timeZone":    f.timeZone,
	}
}

func (f *eventFlags) input() (calendar.EventInput, error) {
	return calendar_tools.EventInputFromArgs(f.args())
}

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Manage events on the primary calendar",
	}

	cmd.AddCommand(newEventsListCmd())
	cmd.AddCommand(newEventsCreateCmd())
	cmd.AddCommand(newEventsUpdateCmd())
	cmd.AddCommand(newEventsDeleteCmd())

	return cmd
}

// withCalendar opens a signed-in session and runs fn against the gateway.
func withCalendar(ctx context.Context, fn func(context.Context, server.Calendar) error) error {
	cfg, logger, err := loadConfig(false)
	if err != nil {
		return err
	}
	sc, err := openSession(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer shutdown(sc, logger)

	if !sc.Auth().IsSignedIn() {
		return fmt.Errorf("%w: run 'todocal login' first", calendar.ErrNotSignedIn)
	}
	return fn(ctx, sc.Calendar())
}

func newEventsListCmd() *cobra.Command {
	var (
		from       string
		to         string
		timeZone   string
		maxResults int64
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events, the current month by default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, loc, err := listOptions(from, to, timeZone, maxResults)
			if err != nil {
				return err
			}
			return withCalendar(cmd.Context(), func(ctx context.Context, cal server.Calendar) error {
				events, err := cal.FetchEvents(ctx, opts)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), events)
				}
				writeEventTable(cmd.OutOrStdout(), events, loc)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Range start (date or date-time). Default: first day of this month")
	cmd.Flags().StringVar(&to, "to", "", "Range end (date or date-time). A date includes the whole day. Default: end of this month")
	cmd.Flags().StringVar(&timeZone, "tz", "", "IANA time zone for parsing and display (default: local)")
	cmd.Flags().Int64VarP(&maxResults, "max", "n", calendar.DefaultMaxResults, "Maximum number of events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the events as JSON")

	return cmd
}

// listOptions parses the list flags the way calendar_list_events parses
// its arguments.
func listOptions(from, to, timeZone string, maxResults int64) (calendar.ListOptions, *time.Location, error) {
	loc, err := common.LocationArg(map[string]any{"tz": timeZone}, "tz")
	if err != nil {
		return calendar.ListOptions{}, nil, err
	}
	if maxResults <= 0 {
		return calendar.ListOptions{}, nil, fmt.Errorf("--max must be positive")
	}
	opts := calendar.ListOptions{MaxResults: maxResults}

	if from != "" {
		if opts.Start, _, err = common.ParseTime(from, loc); err != nil {
			return calendar.ListOptions{}, nil, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if to != "" {
		end, allDay, err := common.ParseTime(to, loc)
		if err != nil {
			return calendar.ListOptions{}, nil, fmt.Errorf("invalid --to: %w", err)
		}
		if allDay {
			end = end.Add(24*time.Hour - time.Second)
		}
		opts.End = end
	}
	if !opts.Start.IsZero() && !opts.End.IsZero() && opts.End.Before(opts.Start) {
		return calendar.ListOptions{}, nil, fmt.Errorf("--to must not be before --from")
	}
	return opts, loc, nil
}

func newEventsCreateCmd() *cobra.Command {
	var flags eventFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event",
		Example: `  todocal events create --summary "Dentist" --start 2026-03-01T09:30
  todocal events create --summary "Holiday" --start 2026-08-01 --end 2026-08-15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.input()
			if err != nil {
				return err
			}
			return withCalendar(cmd.Context(), func(ctx context.Context, cal server.Calendar) error {
				event, err := cal.CreateEvent(ctx, in)
				if err != nil {
					return fmt.Errorf("failed to create event: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", event.Summary, event.ID)
				return nil
			})
		},
	}
	flags.register(cmd)

	return cmd
}

func newEventsUpdateCmd() *cobra.Command {
	var flags eventFlags

	cmd := &cobra.Command{
		Use:   "update EVENT_ID",
		Short: "Replace an event's title, time, location and description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.input()
			if err != nil {
				return err
			}
			return withCalendar(cmd.Context(), func(ctx context.Context, cal server.Calendar) error {
				body, err := calendar_tools.KeepDuration(ctx, cal, args[0], flags.args(), in)
				if err != nil {
					return fmt.Errorf("failed to load event: %w", err)
				}
				event, err := cal.UpdateEvent(ctx, args[0], body)
				if err != nil {
					return fmt.Errorf("failed to update event: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s)\n", event.Summary, event.ID)
				return nil
			})
		},
	}
	flags.register(cmd)

	return cmd
}

func newEventsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete EVENT_ID...",
		Short: "Delete one or more events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := batch.ParseIDs(args, "EVENT_ID")
			if err != nil {
				return err
			}
			return withCalendar(cmd.Context(), func(ctx context.Context, cal server.Calendar) error {
				results := batch.Process(ctx, ids, func(ctx context.Context, id string) (string, error) {
					return "deleted", cal.DeleteEvent(ctx, id)
				})
				for _, r := range results {
					if r.Status == batch.StatusSuccess {
						fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Deleted "+r.ID))
					} else {
						fmt.Fprintln(cmd.OutOrStdout(), errStyle.Render("Failed "+r.ID+": "+r.Error))
					}
				}
				if summary := batch.Summarize(results); summary.Failed > 0 {
					return fmt.Errorf("%d of %d deletions failed", summary.Failed, summary.Total)
				}
				return nil
			})
		},
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeEventTable(out io.Writer, events []calendar.Event, loc *time.Location) {
	if len(events) == 0 {
		fmt.Fprintln(out, "No events.")
		return
	}
	for _, e := range events {
		line := fmt.Sprintf("%-22s %s", displayTime(e.Start, loc), e.Summary)
		if e.Location != "" {
			line += " @ " + e.Location
		}
		fmt.Fprintf(out, "%s  %s\n", strings.TrimRight(line, " "), mutedStyle.Render("["+e.ID+"]"))
	}
}

func displayTime(t calendar.EventTime, loc *time.Location) string {
	if t.AllDay() {
		return t.Date + " (all day)"
	}
	parsed, err := t.Time()
	if err != nil {
		return t.DateTime
	}
	return parsed.In(loc).Format("2006-01-02 15:04 MST")
}
