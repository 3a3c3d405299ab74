package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/attendance-archive-api/internal/archive"
	"github.com/noah-isme/attendance-archive-api/internal/retention"
)

var exportFlags struct {
	professor string
	start     string
	end       string
	format    string
	year      int
	month     int
	previous  bool
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download archive exports",
	Long: `Download attendance, assessment or monthly report exports into the output directory.

Existing files are never overwritten; a numbered copy is written instead.

Examples:
  # Current month attendance with photos
  archivectl export attendance --format zip

  # One professor's assessments for part of February
  archivectl export assessments --professor 42 --year 2025 --month 2 --start 2025-02-03 --end 2025-02-14

  # February monthly report
  archivectl export monthly --year 2025 --month 2

  # Attendance, assessments and monthly report of last month
  archivectl export all --previous`,
}

var exportAttendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Export attendance records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printStatus(console.out, console.ctrl.ExportAttendance(cmd.Context(), exportFilter()))
	},
}

var exportAssessmentsCmd = &cobra.Command{
	Use:   "assessments",
	Short: "Export assessment records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printStatus(console.out, console.ctrl.ExportAssessments(cmd.Context(), exportFilter()))
	},
}

var exportMonthlyCmd = &cobra.Command{
	Use:   "monthly",
	Short: "Export the monthly report",
	RunE: func(cmd *cobra.Command, args []string) error {
		year, month := exportFlags.year, exportFlags.month
		if year == 0 || month == 0 {
			current := console.ctrl.View().Summary.Current
			if year == 0 {
				year = current.Year
			}
			if month == 0 {
				month = current.Month
			}
		}
		return printStatus(console.out, console.ctrl.ExportMonthlyReport(cmd.Context(), year, month))
	},
}

var exportAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Export attendance, assessments and the monthly report of one month",
	Long: `Export attendance, assessments and the monthly report of one month.

Each file is exported on its own; a failed export is reported and the others still
run. Nothing is marked complete.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		year, month := exportFlags.year, exportFlags.month
		if exportFlags.previous {
			year, month = previousMonth(console.ctrl.View().Summary.Current, time.Now())
		}
		results, st := console.ctrl.ExportMonth(cmd.Context(), year, month)
		return printMonthExports(console.out, results, st)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportAttendanceCmd, exportAssessmentsCmd, exportMonthlyCmd, exportAllCmd)

	for _, c := range []*cobra.Command{exportAttendanceCmd, exportAssessmentsCmd} {
		c.Flags().StringVar(&exportFlags.professor, "professor", "", "professor ID (default all professors)")
		c.Flags().StringVar(&exportFlags.start, "start", "", "first day, YYYY-MM-DD")
		c.Flags().StringVar(&exportFlags.end, "end", "", "last day, YYYY-MM-DD")
		c.Flags().IntVar(&exportFlags.year, "year", 0, "year of the exported month (default current)")
		c.Flags().IntVar(&exportFlags.month, "month", 0, "month 1-12 (default current)")
	}
	exportAttendanceCmd.Flags().StringVar(&exportFlags.format, "format", "", "csv or zip (zip bundles photos)")

	exportMonthlyCmd.Flags().IntVar(&exportFlags.year, "year", 0, "report year (default current)")
	exportMonthlyCmd.Flags().IntVar(&exportFlags.month, "month", 0, "report month 1-12 (default current)")

	exportAllCmd.Flags().IntVar(&exportFlags.year, "year", 0, "year of the exported month (default current)")
	exportAllCmd.Flags().IntVar(&exportFlags.month, "month", 0, "month 1-12 (default current)")
	exportAllCmd.Flags().BoolVar(&exportFlags.previous, "previous", false, "export the month before the current one")
	exportAllCmd.MarkFlagsMutuallyExclusive("previous", "year")
	exportAllCmd.MarkFlagsMutuallyExclusive("previous", "month")
}

// previousMonth returns the month before current, falling back to now when the
// archive status could not be loaded.
func previousMonth(current archive.Period, now time.Time) (int, int) {
	year, month := current.Year, time.Month(current.Month)
	if year == 0 {
		year, month = retention.MonthOf(now)
	}
	year, month = retention.PreviousMonth(year, month)
	return year, int(month)
}

// printMonthExports lists every file of a whole-month export, then the overall outcome.
func printMonthExports(out io.Writer, results []archive.MonthExport, st archive.Status) error {
	for _, r := range results {
		mark := "ok"
		if !r.Status.OK() {
			mark = "failed"
		}
		fmt.Fprintf(out, "%-12s %-7s %s\n", r.Kind, mark, r.Status.Message)
	}
	return printStatus(out, st)
}

func exportFilter() archive.ExportFilter {
	return archive.ExportFilter{
		ProfessorID: exportFlags.professor,
		StartDate:   exportFlags.start,
		EndDate:     exportFlags.end,
		Format:      exportFlags.format,
		Year:        exportFlags.year,
		Month:       exportFlags.month,
	}
}

