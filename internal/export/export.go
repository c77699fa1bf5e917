// Package export renders notes as CSV and markdown documents.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pbaille/notes/internal/domain"
)

const exportedLayout = "2006-01-02 15:04:05"

var csvHeader = []string{"ID", "Date", "Time", "Category", "Note"}

// CSV writes one row per note.
func CSV(w io.Writer, notes []domain.Note) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, n := range notes {
		row := []string{
			strconv.FormatInt(n.ID, 10),
			n.Date,
			n.Timestamp,
			n.CategoryName(),
			n.DisplayText(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", n.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileName returns a timestamped download name such as notes_export_20250101_120000.csv.
func FileName(prefix, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, now.Format("20060102_150405"), ext)
}

// DailyMarkdown renders notes grouped by date, newest first. from and to
// describe the selected range and may be empty.
func DailyMarkdown(notes []domain.Note, from, to string, now time.Time) string {
	var sb strings.Builder

	sb.WriteString("# Daily Notes Export\n\n")
	fmt.Fprintf(&sb, "**Date Range:** %s to %s\n\n", orAll(from), orAll(to))
	writeSummary(&sb, len(notes), now)

	for _, g := range ByDate(notes) {
		fmt.Fprintf(&sb, "## %s\n\n", orNA(g.Label))
		fmt.Fprintf(&sb, "*%d notes*\n\n", len(g.Notes))
		for _, n := range g.Notes {
			fmt.Fprintf(&sb, "### %s\n\n", orNA(n.Timestamp))
			fmt.Fprintf(&sb, "**Category:** %s\n\n", orNA(n.CategoryName()))
			sb.WriteString(n.DisplayText())
			sb.WriteString("\n\n---\n\n")
		}
	}
	return sb.String()
}

// CategoryMarkdown renders notes grouped by category. filter names the
// category selection shown in the header.
func CategoryMarkdown(notes []domain.Note, filter string, now time.Time) string {
	var sb strings.Builder

	if filter == "" {
		filter = "All Categories"
	}
	sb.WriteString("# Notes by Category Export\n\n")
	fmt.Fprintf(&sb, "**Category Filter:** %s\n\n", filter)
	writeSummary(&sb, len(notes), now)

	for _, g := range ByCategory(notes) {
		fmt.Fprintf(&sb, "## %s\n\n", g.Label)
		fmt.Fprintf(&sb, "*%d notes*\n\n", len(g.Notes))
		for _, n := range g.Notes {
			if ts := strings.TrimSpace(n.Timestamp); ts != "" {
				fmt.Fprintf(&sb, "**%s %s**\n\n", orNA(n.Date), ts)
			} else {
				fmt.Fprintf(&sb, "**%s**\n\n", orNA(n.Date))
			}
			sb.WriteString(n.DisplayText())
			sb.WriteString("\n\n---\n\n")
		}
	}
	return sb.String()
}

func writeSummary(sb *strings.Builder, total int, now time.Time) {
	fmt.Fprintf(sb, "**Total Notes:** %d\n\n", total)
	fmt.Fprintf(sb, "**Exported:** %s\n\n", now.Format(exportedLayout))
	sb.WriteString("---\n\n")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func orAll(s string) string {
	if s == "" {
		return "all"
	}
	return s
}
