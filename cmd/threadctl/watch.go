package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/threadkit/config"
	"github.com/vinayprograms/threadkit/introspect"
	"github.com/vinayprograms/threadkit/threads"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow snapshots from every process on the bus",
		Long:  `watch prints one line per snapshot and reports stalled threads and processes that stop publishing. It runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetDuration("stall-after"); v > 0 {
				cfg.Introspect.StallAfter = v.String()
			}
			silentAfter, _ := cmd.Flags().GetDuration("silent-after")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, cmd, cfg, silentAfter)
		},
	}
	cmd.Flags().Duration("stall-after", 0, "Report threads whose activity is older than this (default from config)")
	cmd.Flags().Duration("silent-after", 15*time.Second, "Report processes silent for longer than this")
	return cmd
}

func watch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, silentAfter time.Duration) error {
	b, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	logger := newLogger(cmd, cfg)
	out := &lockedWriter{w: cmd.OutOrStdout()}

	m, err := introspect.NewMonitor(introspect.MonitorConfig{
		Bus:           b,
		SubjectPrefix: cfg.Introspect.SubjectPrefix,
		SilentAfter:   silentAfter,
		StallAfter:    config.Duration(cfg.Introspect.StallAfter),
		Spawner:       threads.NewSpawner(threads.WithLogger(logger)),
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	m.OnSilent(func(instance string) {
		fmt.Fprintf(out, "SILENT  %s\n", instance)
	})
	m.OnStalled(func(instance string, st threads.Status) {
		fmt.Fprintf(out, "STALLED %s %s (id %d) %q since %s\n",
			instance, st.Name, st.ID, st.Activity, st.ActivityAt.Format(time.RFC3339))
	})

	updates := m.Watch()
	if err := m.Start(ctx); err != nil {
		return err
	}
	defer m.Stop(time.Second)

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			running := 0
			for _, st := range snap.Threads {
				if st.Running {
					running++
				}
			}
			fmt.Fprintf(out, "%s  %s  seq %d  threads %d  running %d\n",
				snap.Timestamp.Format(time.RFC3339), snap.Instance, snap.Seq, len(snap.Threads), running)
		}
	}
}

// lockedWriter serializes writes from the monitor thread and the print loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
