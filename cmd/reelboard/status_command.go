package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and board status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			status, err := client.status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			running := "stopped"
			color := ansiRed
			if status.Running {
				running = "running"
				color = ansiGreen
			}
			if colorize {
				running = color + running + ansiReset
			}

			fmt.Fprintf(out, "Daemon:       %s\n", running)
			fmt.Fprintf(out, "Scenes:       %d\n", status.Summary.SceneCount)
			fmt.Fprintf(out, "Characters:   %d\n", status.Summary.CharacterCount)
			fmt.Fprintf(out, "Live assets:  %d\n", status.Summary.LiveAssets)
			fmt.Fprintf(out, "Poll loops:   %d\n", status.ActiveLoops)
			fmt.Fprintf(out, "Database:     %s\n", status.DatabasePath)

			if len(status.Summary.ByStatus) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderStatusBreakdown(status.Summary.ByStatus))
			}
			return nil
		},
	}
}

// renderStatusBreakdown prints per-status scene counts in a stable order.
func renderStatusBreakdown(byStatus map[string]int) string {
	order := []string{"idle", "pending", "downloading", "complete", "failed"}
	title := cases.Title(language.Und)

	var known []string
	seen := make(map[string]struct{})
	for _, status := range order {
		if _, ok := byStatus[status]; ok {
			known = append(known, status)
			seen[status] = struct{}{}
		}
	}
	var extra []string
	for status := range byStatus {
		if _, ok := seen[status]; !ok {
			extra = append(extra, status)
		}
	}
	sort.Strings(extra)
	known = append(known, extra...)

	rows := make([][]string, 0, len(known))
	for _, status := range known {
		rows = append(rows, []string{title.String(status), fmt.Sprintf("%d", byStatus[status])})
	}
	return renderTable([]string{"Status", "Scenes"}, rows, []columnAlignment{alignLeft, alignRight})
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
