package ui

import (
	"fmt"
	"math"
	"strings"
)

var sparkLevels = []rune(" ▁▂▃▄▅▆▇█")

const slotWidth = 4

// Sparkline renders values as vertical bars, one slot per sample, oldest
// on the left, scaled to the largest value. Slots without a sample are
// drawn as a dim baseline. The result has height bar rows followed by a
// row of 1m..Nm labels.
func Sparkline(values []int, slots, height int) []string {
	if slots <= 0 {
		return nil
	}
	if height <= 0 {
		height = 1
	}
	if len(values) > slots {
		values = values[len(values)-slots:]
	}

	peak := 0
	for _, v := range values {
		peak = max(peak, v)
	}

	// Eighths of a row filled per slot.
	levels := make([]int, slots)
	for i, v := range values {
		if peak == 0 || v <= 0 {
			continue
		}
		levels[i] = max(1, int(math.Round(float64(v)/float64(peak)*float64(height*8))))
	}

	rows := make([]string, 0, height+1)
	for r := height - 1; r >= 0; r-- {
		var b strings.Builder
		for i := 0; i < slots; i++ {
			fill := min(8, max(0, levels[i]-r*8))
			cell := strings.Repeat(string(sparkLevels[fill]), slotWidth-1) + " "
			switch {
			case fill > 0:
				b.WriteString(SparkBarStyle.Render(cell))
			case r == 0:
				b.WriteString(SparkEmptyStyle.Render(strings.Repeat("▁", slotWidth-1) + " "))
			default:
				b.WriteString(cell)
			}
		}
		rows = append(rows, b.String())
	}

	var labels strings.Builder
	for i := 0; i < slots; i++ {
		labels.WriteString(fmt.Sprintf("%-*s", slotWidth, fmt.Sprintf("%dm", i+1)))
	}
	rows = append(rows, DimStyle.Render(strings.TrimRight(labels.String(), " ")))
	return rows
}

// Minutes renders a duration in seconds as whole minutes, rounding half up.
func Minutes(seconds int) string {
	m := int(math.Floor(float64(seconds)/60 + 0.5))
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}

// Percent renders an engagement score, clamped to [0, 100].
func Percent(score float64) string {
	score = math.Max(0, math.Min(100, score))
	return fmt.Sprintf("%s%%", strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", score), "0"), "."))
}
