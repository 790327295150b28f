package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestSparklineShape(t *testing.T) {
	rows := Sparkline([]int{1, 2, 4}, 10, 3)
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 3 bars + labels", len(rows))
	}
	for i, r := range rows[:3] {
		if w := lipgloss.Width(r); w != 10*slotWidth {
			t.Errorf("row %d width = %d, want %d", i, w, 10*slotWidth)
		}
	}
	labels := rows[3]
	if !strings.Contains(labels, "1m  2m  3m") {
		t.Errorf("labels = %q", labels)
	}
	if !strings.Contains(labels, "10m") {
		t.Errorf("labels = %q, want 10m", labels)
	}
}

func TestSparklinePeakFillsTopRow(t *testing.T) {
	rows := Sparkline([]int{0, 8}, 2, 2)
	top := rows[0]
	if !strings.Contains(top, "█") {
		t.Errorf("top row = %q, peak should reach it", top)
	}
	if strings.Count(top, "█") != slotWidth-1 {
		t.Errorf("only the peak slot should be full: %q", top)
	}
}

func TestSparklineKeepsNewestSamples(t *testing.T) {
	rows := Sparkline([]int{9, 1, 2}, 2, 1)
	if !strings.Contains(rows[0], "▄") || !strings.Contains(rows[0], "█") {
		t.Errorf("bars should scale to the kept samples only: %q", rows[0])
	}
}

func TestSparklineAllZero(t *testing.T) {
	rows := Sparkline([]int{0, 0}, 3, 2)
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if strings.ContainsAny(rows[0], "▂▃▄▅▆▇█") {
		t.Errorf("zero values should draw no bars: %q", rows[0])
	}
}

func TestMinutes(t *testing.T) {
	cases := map[int]string{
		0:   "0 minutes",
		29:  "0 minutes",
		30:  "1 minute",
		120: "2 minutes",
		149: "2 minutes",
		150: "3 minutes",
	}
	for secs, want := range cases {
		if got := Minutes(secs); got != want {
			t.Errorf("Minutes(%d) = %q, want %q", secs, got, want)
		}
	}
}

func TestPercent(t *testing.T) {
	cases := map[float64]string{
		85:   "85%",
		72.5: "72.5%",
		0:    "0%",
		100:  "100%",
		500:  "100%",
		-3:   "0%",
	}
	for in, want := range cases {
		if got := Percent(in); got != want {
			t.Errorf("Percent(%v) = %q, want %q", in, got, want)
		}
	}
}
