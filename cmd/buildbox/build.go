package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/console"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/appconfig"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/buildpipe"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

func newBuildCmd() *cobra.Command {
	var cfgPath string
	var containerfile string
	var tags []string
	var buildArgs []string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "build [context]",
		Short: "Build an image with BuildKit, streaming progress through the console pipeline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			contextDir := "."
			if len(args) == 1 {
				contextDir = args[0]
			}
			contextDir, err = filepath.Abs(contextDir)
			if err != nil {
				return err
			}
			file := containerfile
			if file == "" {
				file = filepath.Join(contextDir, cfg.Build.DefaultContainerfile)
			}

			logger := pslog.Ctx(cmd.Context())
			buffer := console.NewLineBuffer("build", cfg.ConsoleSettings(), &printSink{
				out: cmd.OutOrStdout(),
				err: cmd.ErrOrStderr(),
			}, logger)
			buffer.Start()
			defer buffer.Stop()

			builder := buildpipe.New(buildpipe.Config{Address: cfg.Build.Address}, logger)
			return builder.Build(cmd.Context(), buildpipe.BuildRequest{
				ContextDir:    contextDir,
				Containerfile: file,
				Tags:          tags,
				BuildArgs:     parseBuildArgs(buildArgs),
				Timeout:       timeout,
			}, buffer)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file path")
	cmd.Flags().StringVarP(&containerfile, "file", "f", "", "path to the Containerfile")
	cmd.Flags().StringArrayVarP(&tags, "tag", "t", nil, "image name and tag (repeatable)")
	cmd.Flags().StringArrayVar(&buildArgs, "build-arg", nil, "build argument KEY=VALUE (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "build timeout (0 = default)")
	return cmd
}

func parseBuildArgs(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		if key == "" {
			continue
		}
		out[key] = value
	}
	return out
}

// printSink writes flushed console lines straight to the command's output.
type printSink struct {
	out io.Writer
	err io.Writer
}

func (s *printSink) OnOutput(event schema.OutputEvent) {
	for _, line := range event.Lines {
		if line.Err {
			fmt.Fprintln(s.err, line.Text)
		} else {
			fmt.Fprintln(s.out, line.Text)
		}
	}
}

func (s *printSink) OnImportantLine(schema.ImportantLineEvent) {}

func (s *printSink) OnSessionState(schema.SessionStateEvent) {}

func (s *printSink) OnClear(schema.ClearEvent) {}
