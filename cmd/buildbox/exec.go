package main

import (
	"bufio"
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/console"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/appconfig"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/consolebus"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/logx"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

func newExecCmd() *cobra.Command {
	var cfgPath string
	var interactive bool
	var workdir string
	cmd := &cobra.Command{
		Use:   "exec <container> [command line | -- argv...]",
		Short: "Run a command inside a container",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			argv := execArgv(args[1:], cmd.ArgsLenAtDash())
			if len(argv) == 0 {
				return schema.ErrEmptyCommand
			}
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
				Sink:   bus,
				Logger: logger,
				Config: cfg.ConsoleSettings(),
			})
			defer func() { _ = con.Close() }()

			err = con.RunCommand(ctx, console.ExecStreamRequest{
				Container:   args[0],
				Argv:        argv,
				Interactive: interactive,
				WorkingDir:  workdir,
			})
			if err != nil {
				return err
			}

			if interactive {
				go forwardStdin(con)
			}
			return printConsoleEvents(cmd, events)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file path")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "forward stdin to the command")
	cmd.Flags().StringVar(&workdir, "workdir", "", "working directory inside the container")
	return cmd
}

// execArgv resolves the command argv: arguments after -- are taken verbatim;
// otherwise a single trailing argument is tokenized as a command line.
func execArgv(rest []string, argsLenAtDash int) []string {
	if argsLenAtDash >= 0 {
		// argsLenAtDash counts all positional args before --, including the
		// container name that the caller already stripped.
		cut := argsLenAtDash - 1
		if cut < 0 {
			cut = 0
		}
		return rest[cut:]
	}
	if len(rest) == 1 {
		return console.Tokenize(rest[0])
	}
	return rest
}

func forwardStdin(con *console.Console) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := con.SendInput(scanner.Text()); err != nil {
			if !errors.Is(err, schema.ErrNoCommandInput) {
				logx.Ctx(context.Background()).Warn("stdin forward failed", "err", err)
			}
			return
		}
	}
}
