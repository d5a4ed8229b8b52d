package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/c360studio/genguard/events"
	"github.com/c360studio/genguard/retry"
	"github.com/c360studio/genguard/storage"
)

// natsObservers connects to NATS and returns the event publisher plus, when
// a run bucket is configured, the run store. The returned func drains the
// connection.
func (a *App) natsObservers(ctx context.Context, kind string) (retry.Observers, func(), error) {
	obs, conn, err := events.Connect(a.cfg.Events.NATSURL, a.cfg.Events.SubjectPrefix, a.logger)
	if err != nil {
		return nil, nil, err
	}
	closeConn := func() { _ = conn.Drain() }

	observers := retry.Observers{obs}
	if a.cfg.Events.RunBucket != "" {
		store, err := openRunStore(ctx, conn, a.cfg.Events.RunBucket, kind, a.logger)
		if err != nil {
			closeConn()
			return nil, nil, err
		}
		observers = append(observers, store)
	}
	return observers, closeConn, nil
}

func openRunStore(ctx context.Context, conn *nats.Conn, bucket, kind string, logger *slog.Logger) (*storage.RunStore, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	b, err := storage.OpenBucket(ctx, js, bucket)
	if err != nil {
		return nil, err
	}
	return storage.NewRunStore(b, kind, logger), nil
}

func runsCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show stored generation runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if app.cfg.Events.NATSURL == "" {
				return fmt.Errorf("events.nats_url is not configured")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			conn, err := nats.Connect(app.cfg.Events.NATSURL, nats.Name(appName))
			if err != nil {
				return fmt.Errorf("connect to NATS: %w", err)
			}
			defer conn.Close()

			store, err := openRunStore(ctx, conn, app.cfg.Events.RunBucket, "", app.logger)
			if err != nil {
				return err
			}

			var runs []*storage.RunRecord
			if len(args) == 1 {
				run, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				runs = []*storage.RunRecord{run}
			} else if runs, err = store.List(ctx); err != nil {
				return err
			}
			return app.printRuns(runs, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs as JSON")
	return cmd
}

func (a *App) printRuns(runs []*storage.RunRecord, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	for _, run := range runs {
		state := passColor.Sprint(run.State)
		if !run.Valid() {
			state = failColor.Sprint(run.State)
		}
		fmt.Fprintf(a.out, "%s %s %s attempts=%d %s\n",
			run.CreatedAt.Format(time.RFC3339), run.ID, state, len(run.Attempts), run.Kind)
		for _, at := range run.Attempts {
			switch {
			case at.Error != "":
				fmt.Fprintf(a.out, "  #%d error: %s\n", at.Attempt, at.Error)
			case at.Valid:
				fmt.Fprintf(a.out, "  #%d %s\n", at.Attempt, at.Summary)
			default:
				fmt.Fprintf(a.out, "  #%d %s: %s\n", at.Attempt, at.Summary, at.FirstError)
			}
		}
	}
	return nil
}
