package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/executor"
	"github.com/cgedge/slipfill/pkg/slip"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

// Live progress callbacks

func onItemStart(idx, total int, item slip.Item) {
	fmt.Printf("\n  %s[%d/%d]%s %s%s%s\n",
		color(colorCyan), idx+1, total, color(colorReset),
		color(colorBold), item.Describe(), color(colorReset))
}

func onItemEnd(res executor.ItemResult) {
	durStr := formatDuration(res.Duration)
	switch res.Status {
	case core.StatusPassed:
		fmt.Printf("    %s✓%s %s (%s)\n", color(colorGreen), color(colorReset), sideLabel(res), durStr)
	case core.StatusWarned:
		fmt.Printf("    %s⚠%s %s (%s)\n", color(colorYellow), color(colorReset), sideLabel(res), durStr)
	case core.StatusSkipped:
		fmt.Printf("    %s-%s skipped (%s)\n", color(colorCyan), color(colorReset), durStr)
	default:
		fmt.Printf("    %s✗%s not placed (%s)\n", color(colorRed), color(colorReset), durStr)
	}
	if res.Error != "" {
		fmt.Printf("      %s╰─%s %s\n", color(colorGray), color(colorReset), res.Error)
	}
}

func sideLabel(res executor.ItemResult) string {
	label := string(slip.ParseSide(string(res.Item.Side)))
	if res.Matcher != "" {
		label += " via " + res.Matcher
	}
	return label
}

func printSummary(result *executor.RunResult) {
	if result == nil {
		return
	}
	fmt.Println()
	if result.PassedItems > 0 {
		fmt.Printf("  %s%d pick(s) placed%s (%s)\n", color(colorGreen), result.PassedItems, color(colorReset), formatDuration(result.Duration))
	}
	if result.WarnedItems > 0 {
		fmt.Printf("  %s%d pick(s) placed by card fallback%s\n", color(colorYellow), result.WarnedItems, color(colorReset))
	}
	if result.FailedItems > 0 {
		fmt.Printf("  %s%d pick(s) not placed%s\n", color(colorRed), result.FailedItems, color(colorReset))
	}
	if result.SkippedItems > 0 {
		fmt.Printf("  %s%d pick(s) skipped%s\n", color(colorCyan), result.SkippedItems, color(colorReset))
	}
	fmt.Println()

	tableWidth := 76
	fmt.Println(strings.Repeat("═", tableWidth))
	fmt.Printf("  %-28s %-14s %-6s %-8s %12s\n", "Player", "Prop", "Side", "Status", "Duration")
	fmt.Println(strings.Repeat("─", tableWidth))
	for _, ir := range result.ItemResults {
		statusColor := color(colorGreen)
		switch ir.Status {
		case core.StatusFailed:
			statusColor = color(colorRed)
		case core.StatusWarned:
			statusColor = color(colorYellow)
		case core.StatusSkipped:
			statusColor = color(colorCyan)
		}
		fmt.Printf("  %-28s %-14s %-6s %s%-8s%s %12s\n",
			truncate(ir.Item.Name, 28), truncate(ir.Item.Prop, 14), slip.ParseSide(string(ir.Item.Side)),
			statusColor, ir.Status, color(colorReset), formatDuration(ir.Duration))
	}
	fmt.Println(strings.Repeat("═", tableWidth))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
