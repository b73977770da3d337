package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/appconfig"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

func newPsCmd() *cobra.Command {
	var cfgPath string
	var all bool
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List containers",
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

			containers, err := engine.ListContainers(cmd.Context(), all)
			if err != nil {
				return err
			}
			renderContainerTable(cmd.OutOrStdout(), containers)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file path")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include stopped containers")
	return cmd
}

func renderContainerTable(w io.Writer, containers []schema.ContainerSummary) {
	headers := []string{"CONTAINER ID", "NAME", "IMAGE", "STATE", "STATUS", "CREATED"}
	rows := make([][]string, 0, len(containers))
	for _, c := range containers {
		rows = append(rows, []string{
			shortID(c.ID),
			c.Name(),
			c.Image,
			c.State,
			c.Status,
			formatAge(c.Created),
		})
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	writeRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = runewidth.FillRight(cell, widths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}
	writeRow(headers)
	for _, row := range rows {
		writeRow(row)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func formatAge(created time.Time) string {
	if created.IsZero() {
		return ""
	}
	age := time.Since(created)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}
