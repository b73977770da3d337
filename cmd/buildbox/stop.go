package main

import (
	"time"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/appconfig"
)

func newStopCmd() *cobra.Command {
	var cfgPath string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "stop <container>",
		Short: "Stop a running container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			engine, err := openEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			if err := engine.StopContainer(cmd.Context(), args[0], timeout); err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("container stopped", "container", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file path")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "grace period before the engine escalates to SIGKILL")
	return cmd
}
