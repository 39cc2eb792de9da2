package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/cprosche/visibility-testing/internal/validate"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes the rankings and per-case verdicts as terminal tables.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", titleStyle.Render("Visibility validation report"))
	fmt.Fprintf(&b, "run %s at %s\n", r.RunID, r.GeneratedAt.Format("2006-01-02 15:04:05Z"))
	fmt.Fprintf(&b, "tolerances: az %.1f°  el %.1f°  range %.1f km  time %.0f s\n\n",
		r.Tolerances.AzimuthDeg, r.Tolerances.ElevationDeg, r.Tolerances.RangeKm, r.Tolerances.TimeSeconds)

	summaries := make(map[string]Summary, len(r.Implementations))
	for _, s := range r.Implementations {
		summaries[s.Implementation] = s
	}

	if len(r.AccuracyRanking) > 0 {
		rows := make([][]string, 0, len(r.AccuracyRanking))
		for _, e := range r.AccuracyRanking {
			s := summaries[e.Implementation]
			rows = append(rows, []string{
				fmt.Sprint(e.Rank),
				e.DisplayName,
				string(e.Grade),
				fmt.Sprintf("%.1f%%", e.PassRate),
				fmt.Sprintf("%.3f", e.NormalizedError),
				fmt.Sprintf("%.3f", s.Accuracy.Azimuth.AvgError),
				fmt.Sprintf("%.3f", s.Accuracy.Elevation.AvgError),
				fmt.Sprintf("%.3f", s.Accuracy.Range.AvgError),
				humanize.Comma(int64(s.Accuracy.Points())),
				fmt.Sprintf("%d/%d", s.Passed, s.Compared()),
			})
		}
		b.WriteString(titleStyle.Render("Accuracy"))
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"#", "Implementation", "Grade", "Pass rate", "Norm. error", "Az err", "El err", "Range err", "Points", "Cases"}, rows))
		b.WriteString("\n\n")
	}

	if len(r.SpeedRanking) > 0 {
		rows := make([][]string, 0, len(r.SpeedRanking))
		for _, e := range r.SpeedRanking {
			s := summaries[e.Implementation]
			rows = append(rows, []string{
				fmt.Sprint(e.Rank),
				e.DisplayName,
				humanize.FtoaWithDigits(e.MeanExecutionTime, 3) + " s",
				humanize.FtoaWithDigits(s.TotalExecutionTime, 3) + " s",
				humanize.Comma(int64(s.Results)),
			})
		}
		b.WriteString(titleStyle.Render("Speed"))
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"#", "Implementation", "Mean", "Total", "Results"}, rows))
		b.WriteString("\n\n")
	}

	if len(r.Cases) > 0 {
		rows := make([][]string, 0, len(r.Cases))
		for _, c := range r.Cases {
			rows = append(rows, []string{
				c.Implementation,
				c.TestCase,
				verdictLabel(c),
				fmt.Sprintf("%d/%d", c.ImplWindows, c.RefWindows),
				fmt.Sprintf("%.1f%%", c.PassRate),
				firstReason(c),
			})
		}
		b.WriteString(titleStyle.Render("Cases"))
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"Implementation", "Test case", "Verdict", "Windows", "Pass rate", "Detail"}, rows))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	return t.Render()
}

func verdictLabel(c validate.CaseComparison) string {
	v := c.Verdict()
	switch v {
	case "passed":
		return passStyle.Render(v)
	case "failed", string(validate.StatusImplementationError):
		return failStyle.Render(v)
	default:
		return v
	}
}

func firstReason(c validate.CaseComparison) string {
	switch {
	case len(c.Reasons) > 1:
		return fmt.Sprintf("%s (+%d more)", c.Reasons[0], len(c.Reasons)-1)
	case len(c.Reasons) == 1:
		return c.Reasons[0]
	case len(c.Warnings) > 0:
		return c.Warnings[0]
	default:
		return ""
	}
}
