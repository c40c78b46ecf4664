package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"eventcal/internal/config"
	"eventcal/internal/ics"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
	"eventcal/internal/reminder"
	"eventcal/internal/schedule"
	"eventcal/internal/storage"
	"eventcal/internal/store"
	"eventcal/internal/web"
)

// app bundles what every subcommand needs after config loading.
type app struct {
	cfg     *config.Config
	backend storage.Backend
	store   *store.Store
}

func (a *app) Close() {
	if err := a.backend.Close(); err != nil {
		appLog.Error("close storage", err)
	}
}

func openApp(ctx context.Context, configPath string, opts ...store.Option) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	appLog.Configure(cfg.Log.Level, cfg.Log.Format)

	backend, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return &app{cfg: cfg, backend: backend, store: store.New(backend, opts...)}, nil
}

func newServeCommand(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the reminder scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			a, err := openApp(ctx, *configPath, store.WithRegisterer(reg))
			if err != nil {
				return err
			}
			defer a.Close()

			// --listen overrides the config file if provided.
			if listen != "" {
				a.cfg.Listen = listen
			}

			appLog.Info("eventcal starting",
				"version", version,
				"listen", a.cfg.Listen,
				"storage", a.cfg.Storage.Driver,
				"reminders", a.cfg.Reminders.Enabled,
				"metrics", a.cfg.Metrics.Enabled,
			)

			if a.cfg.Reminders.Enabled {
				sched, err := reminder.NewScheduler(a.cfg.Reminders.Schedule, reminder.NewScanner(a.store, reminder.LogNotifier{}))
				if err != nil {
					return err
				}
				sched.Start()
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					sched.Stop(stopCtx)
				}()
			}

			if err := web.NewServer(a.cfg, a.store, reg).Start(ctx); err != nil {
				return err
			}
			appLog.Info("eventcal exiting")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func newListCommand(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all events ordered by start time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			events := schedule.SortedByStart(a.store.ListAll(cmd.Context()))
			return printEvents(cmd.OutOrStdout(), events, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newSearchCommand(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find events whose title or description contains the query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			found, err := schedule.Search(a.store.ListAll(cmd.Context()), args[0])
			if err != nil {
				return err
			}
			return printEvents(cmd.OutOrStdout(), found, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newRemindersCommand(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "List events starting within the next hour",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			due := schedule.Reminders(a.store.ListAll(cmd.Context()), time.Now())
			return printEvents(cmd.OutOrStdout(), schedule.SortedByStart(due), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newImportCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file-or-url>",
		Short: "Create events from an iCalendar file or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			body, err := ics.NewFetcher().Fetch(ctx, args[0])
			if err != nil {
				return fmt.Errorf("fetch %s: %w", args[0], err)
			}
			res, err := ics.ParseICS(body)
			if err != nil {
				return err
			}

			created, rejected := 0, 0
			for _, in := range res.Inputs {
				ev, err := a.store.Insert(ctx, in)
				if err != nil {
					if errors.Is(err, model.ErrStorage) {
						return err
					}
					appLog.Error("import: event rejected", err, "title", in.Title)
					rejected++
					continue
				}
				appLog.Debug("import: event created", "id", ev.ID, "title", ev.Title)
				created++
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d events (%d skipped, %d rejected)\n",
				created, len(res.Skipped), rejected)
			return nil
		},
	}
}

func newExportCommand(configPath *string) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all events as an iCalendar document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			body := ics.Export(a.store.ListAll(cmd.Context()), time.Now())
			if out == "" || out == "-" {
				_, err := io.WriteString(cmd.OutOrStdout(), body)
				return err
			}
			return os.WriteFile(out, []byte(body), 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the eventcal version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "eventcal", version)
		},
	}
}

func printEvents(w io.Writer, events []model.Event, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTART\tEND\tRECURRENCE\tPARENT\tTITLE")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.StartTime.Format(time.RFC3339),
			e.EndTime.Format(time.RFC3339),
			e.Recurrence,
			e.ParentID,
			e.Title,
		)
	}
	return tw.Flush()
}
