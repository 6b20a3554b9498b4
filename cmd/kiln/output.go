package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

func renderJobTable(list []jobView) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Template", "Target", "Status", "Created", "Detail"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 5, Align: text.AlignRight},
	})

	for _, job := range list {
		tw.AppendRow(table.Row{
			job.ID,
			job.TemplateRef,
			job.Target,
			job.Status,
			job.CreatedAt.Local().Format("2006-01-02 15:04"),
			jobDetail(job),
		})
	}
	return tw.Render()
}

func jobDetail(job jobView) string {
	switch job.Status {
	case "failed":
		return truncate(job.ErrorMessage, 60)
	case "running":
		return truncate(job.LastLogLine, 60)
	case "ready":
		return job.Result
	default:
		return ""
	}
}

func printJobDetail(out io.Writer, job jobView) {
	fmt.Fprintf(out, "Job:       %s\n", job.ID)
	fmt.Fprintf(out, "Template:  %s\n", job.TemplateRef)
	fmt.Fprintf(out, "Target:    %s\n", job.Target)
	fmt.Fprintf(out, "Status:    %s\n", colorizeStatus(out, job.Status))
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", job.ErrorMessage)
	}
	if job.LastLogLine != "" && job.Status == "running" {
		fmt.Fprintf(out, "Last log:  %s\n", job.LastLogLine)
	}
	if job.Result != "" {
		fmt.Fprintf(out, "Result:    %s\n", job.Result)
	}
	if job.WebArchive != "" {
		fmt.Fprintf(out, "Web zip:   %s\n", job.WebArchive)
	}
	if job.AndroidPkg != "" {
		fmt.Fprintf(out, "APK:       %s\n", job.AndroidPkg)
	}
	if job.Video != "" {
		fmt.Fprintf(out, "Preview:   %s\n", job.Video)
	}
	if len(job.Screenshots) > 0 {
		fmt.Fprintf(out, "Shots:     %d published\n", len(job.Screenshots))
	}
	if len(job.TimingsMS) > 0 {
		steps := make([]string, 0, len(job.TimingsMS))
		for step := range job.TimingsMS {
			steps = append(steps, step)
		}
		sort.Strings(steps)
		fmt.Fprintln(out, "Timings:")
		for _, step := range steps {
			elapsed := time.Duration(job.TimingsMS[step]) * time.Millisecond
			fmt.Fprintf(out, "  %-14s %s\n", step, elapsed)
		}
	}
}

func printDaemonStatus(out io.Writer, status daemonStatus) {
	fmt.Fprintln(out, "Jobs:")
	for _, name := range []string{"queued", "running", "ready", "failed"} {
		fmt.Fprintf(out, "  %-8s %d\n", name, status.Jobs[name])
	}
	fmt.Fprintln(out, "Cache:")
	fmt.Fprintf(out, "  entries  %d\n", status.Cache.Entries)
	fmt.Fprintf(out, "  used     %s\n", formatBytes(uint64(status.Cache.UsedBytes)))
	fmt.Fprintf(out, "  free     %s of %s\n",
		formatBytes(status.Cache.DiskFreeBytes), formatBytes(status.Cache.DiskTotalBytes))
	fmt.Fprintf(out, "  root     %s\n", status.Cache.Root)
}

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiCyan  = "\x1b[36m"
)

func colorizeStatus(out io.Writer, status string) string {
	if !shouldColorize(out) {
		return status
	}
	switch status {
	case "ready":
		return ansiGreen + status + ansiReset
	case "failed":
		return ansiRed + status + ansiReset
	case "running":
		return ansiCyan + status + ansiReset
	default:
		return status
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-3]) + "..."
}

func formatBytes(v uint64) string {
	const unit = 1024
	if v < unit {
		return fmt.Sprintf("%d B", v)
	}
	div, exp := uint64(unit), 0
	for n := v / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(v)/float64(div), "KMGTPE"[exp])
}
