package main

import (
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"pkt.systems/pslog"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/appconfig"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/buildpipe"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/clipboard"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run buildbox diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath, "backend", cfg.Engine.Backend)

			checkSocket(logger, "engine socket", cfg.Engine.Address)
			if cfg.Engine.Backend == "containerd" {
				checkSocket(logger, "containerd socket", cfg.Engine.Containerd.Address)
			}

			engine, err := openEngine(cmd.Context(), cfg)
			if err != nil {
				logger.Warn("doctor engine unavailable", "err", err)
			} else {
				logger.Info("doctor engine ok")
				containers, err := engine.ListContainers(cmd.Context(), true)
				if err != nil {
					logger.Warn("doctor container list failed", "err", err)
				} else {
					logger.Info("doctor container list ok", "containers", len(containers))
				}
				_ = engine.Close()
			}

			builder := buildpipe.New(buildpipe.Config{Address: cfg.Build.Address}, logger)
			for _, addr := range builder.Addresses() {
				checkSocket(logger, "buildkit socket", addr)
			}

			if clipboard.Available() {
				logger.Info("doctor clipboard ok")
			} else {
				logger.Warn("doctor clipboard unavailable")
			}

			logger.Info("doctor done")
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file path")
	return cmd
}

func checkSocket(logger pslog.Logger, label, address string) {
	path := strings.TrimPrefix(strings.TrimSpace(address), "unix://")
	if path == "" || strings.Contains(path, "://") {
		return
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		logger.Warn("doctor socket not accessible", "check", label, "path", path, "err", err)
		return
	}
	logger.Info("doctor socket ok", "check", label, "path", path)
}
