package report

import (
	"fmt"
	"sort"
	"strings"
)

// LineGraph renders daily discrepancy totals as an ASCII column chart, one
// two-character column per date in calendar order. Returns the lines
// without trailing newlines.
func LineGraph(byDate map[string]int, height int) []string {
	if len(byDate) == 0 {
		return []string{"  No data available"}
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	totals := make([]int, len(dates))
	maxVal, minVal := byDate[dates[0]], byDate[dates[0]]
	for i, d := range dates {
		totals[i] = byDate[d]
		if totals[i] > maxVal {
			maxVal = totals[i]
		}
		if totals[i] < minVal {
			minVal = totals[i]
		}
	}

	labelWidth := len(fmt.Sprint(maxVal)) + 1
	var lines []string
	for row := height; row >= 0; row-- {
		threshold := float64(minVal)
		if height > 0 {
			threshold += float64(maxVal-minVal) * float64(row) / float64(height)
		}

		var label string
		switch row {
		case height:
			label = fmt.Sprintf("%*d", labelWidth, maxVal)
		case 0:
			label = fmt.Sprintf("%*d", labelWidth, minVal)
		case height / 2:
			label = fmt.Sprintf("%*d", labelWidth, (maxVal+minVal)/2)
		default:
			label = strings.Repeat(" ", labelWidth)
		}

		cols := make([]string, len(totals))
		for i, v := range totals {
			switch {
			case float64(v) < threshold:
				cols[i] = " "
			case v == maxVal:
				cols[i] = "█"
			default:
				cols[i] = "▓"
			}
		}
		lines = append(lines, fmt.Sprintf("  %s │%s", label, strings.Join(cols, " ")))
	}

	lines = append(lines, fmt.Sprintf("  %s └%s", strings.Repeat(" ", labelWidth),
		strings.Repeat("──", len(totals))))

	// Date axis: MM-DD at start, middle, end.
	start, end := shortDate(dates[0]), shortDate(dates[len(dates)-1])
	axisWidth := len(totals)*2 - 1
	axis := fmt.Sprintf("  %s  %s", strings.Repeat(" ", labelWidth), start)
	if len(dates) > 2 {
		mid := shortDate(dates[len(dates)/2])
		pad := axisWidth/2 - len(start)
		if pad < 1 {
			pad = 1
		}
		axis += strings.Repeat(" ", pad) + mid
	}
	if len(dates) > 1 {
		axis += " " + end
	}
	lines = append(lines, axis)

	total := 0
	for _, v := range totals {
		total += v
	}
	avg := float64(total) / float64(len(totals))
	lines = append(lines, "", fmt.Sprintf("  Total: %d discrepancies over %d days (avg: %.1f/day, max: %d)",
		total, len(totals), avg, maxVal))
	return lines
}

// shortDate trims YYYY-MM-DD to MM-DD for the axis labels.
func shortDate(d string) string {
	if len(d) > 5 {
		return d[5:]
	}
	return d
}
