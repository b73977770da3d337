package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/console"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/appconfig"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/clipboard"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/consolebus"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/logx"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

func newLogsCmd() *cobra.Command {
	var cfgPath string
	var follow bool
	var since time.Duration
	var tail int
	var timestamps bool
	var copyOut bool
	cmd := &cobra.Command{
		Use:   "logs <container>",
		Short: "Stream container logs through the console pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			consoleID := schema.ConsoleID(args[0])
			logger := logx.WithConsole(cmd.Context(), consoleID)
			ctx := logx.ContextWithConsoleLogger(cmd.Context(), logger, consoleID)

			engine, err := openEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			bus := consolebus.New(logger)
			events, unsubscribe := bus.Subscribe(consoleID)
			defer unsubscribe()

			con := console.New(consoleID, engine, nil, console.Options{
				Sink:      bus,
				Clipboard: clipboard.New(),
				Logger:    logger,
				Config:    cfg.ConsoleSettings(),
			})
			defer func() { _ = con.Close() }()

			req := console.LogStreamRequest{
				Container:  args[0],
				Follow:     follow,
				Timestamps: timestamps,
				Tail:       tail,
			}
			if since > 0 {
				req.Since = time.Now().Add(-since)
			}
			if err := con.FollowLogs(ctx, req); err != nil {
				return err
			}

			err = printConsoleEvents(cmd, events)
			if copyOut {
				con.CopyOutput(ctx)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file path")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep streaming new lines")
	cmd.Flags().DurationVar(&since, "since", 0, "only lines newer than this age (e.g. 10m)")
	cmd.Flags().IntVar(&tail, "tail", 0, "number of historical lines to show (0 = all)")
	cmd.Flags().BoolVar(&timestamps, "timestamps", false, "include engine timestamps")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "copy the final output snapshot to the clipboard")
	return cmd
}

// printConsoleEvents drains bus events to stdout/stderr until the session
// reports not-running or the command context ends.
func printConsoleEvents(cmd *cobra.Command, events <-chan consolebus.Event) error {
	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			switch event.Type {
			case consolebus.EventOutput:
				for _, line := range event.Output.Lines {
					if line.Err {
						fmt.Fprintln(cmd.ErrOrStderr(), line.Text)
					} else {
						fmt.Fprintln(cmd.OutOrStdout(), line.Text)
					}
				}
			case consolebus.EventSessionState:
				if !event.Session.Running {
					return nil
				}
			}
		}
	}
}
