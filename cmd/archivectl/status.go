package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/attendance-archive-api/internal/archive"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the archive summary and the actions available now",
	RunE: func(cmd *cobra.Command, args []string) error {
		renderView(console.out, console.ctrl.View())
		return nil
	},
}

var professorsCmd = &cobra.Command{
	Use:   "professors",
	Short: "List professors usable as export filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		professors, st := console.ctrl.Professors(cmd.Context())
		if !st.OK() {
			return statusErr(st)
		}
		if len(professors) == 0 {
			fmt.Fprintln(console.out, "No professors found.")
			return nil
		}
		w := tabwriter.NewWriter(console.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSUBJECT")
		for _, p := range professors {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.FullName, p.Subject)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, professorsCmd)
}

func renderView(out io.Writer, v archive.View) {
	s := v.Summary
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Current month:\t%s (%s)\n", s.CurrentMonthLabel, s.Current.State)
	fmt.Fprintf(w, "Days until month end:\t%d\n", s.DaysUntilMonthEnd)
	if s.Current.State >= archive.StateCompleted {
		fmt.Fprintf(w, "Completed:\t%s by %s\n", formatTime(s.Current.CompletedAt), orDash(s.Current.CompletedBy))
	}
	if s.CleanupTarget.State != archive.StateUninitialized {
		fmt.Fprintf(w, "Cleanup target:\t%s (%s)\n", s.CleanupTarget.Label(), s.CleanupTarget.State)
	} else {
		fmt.Fprintf(w, "Cleanup target:\tnone\n")
	}
	fmt.Fprintf(w, "Cleanup window:\t%s\n", openClosed(s.IsCleanupWindow))
	if s.HasCurrentData {
		fmt.Fprintf(w, "Current data:\t%d attendance, %d assessments\n", s.CurrentData.Attendance, s.CurrentData.Assessments)
	}
	_ = w.Flush()

	if v.ShowReminder {
		fmt.Fprintf(out, "\nReminder: %s ends in %d days. Export and mark it complete before cleanup.\n",
			s.CurrentMonthLabel, s.DaysUntilMonthEnd)
	}

	fmt.Fprintln(out, "\nAvailable actions:")
	actions := []struct {
		name    string
		allowed bool
	}{
		{"export", v.CanExport},
		{"mark-complete", v.CanMarkComplete},
		{"cleanup", v.CanCleanup},
		{"cleanup --emergency", v.CanEmergencyCleanup},
		{"clear-all", v.CanClearAll},
	}
	listed := false
	for _, a := range actions {
		if a.allowed {
			fmt.Fprintf(out, "  %s\n", a.name)
			listed = true
		}
	}
	if !listed {
		fmt.Fprintln(out, "  none")
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func openClosed(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}
