package main

import (
	"github.com/spf13/cobra"

	"github.com/noah-isme/attendance-archive-api/internal/archive"
)

var actionFlags struct {
	emergency bool
	phrase    string
}

var markCompleteCmd = &cobra.Command{
	Use:   "mark-complete",
	Short: "Mark the current month as complete",
	Long: `Mark the current month as complete after its exports were downloaded.

A completed month is deleted by the next cleanup, so export attendance,
assessments and the monthly report first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return console.runConfirmed(archive.ActionMarkComplete, "", func(token, _ string) archive.Status {
			return console.ctrl.MarkComplete(cmd.Context(), token)
		})
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete the completed month's photos and records",
	Long: `Delete the photos, attendance and assessment records of the latest completed month.

Without --emergency the command only runs inside the cleanup window, days 1-3 at
the start of the month after the completed one. --emergency skips the window check
but still requires a completed month.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if actionFlags.emergency {
			return console.runConfirmed(archive.ActionEmergencyCleanup, "", func(token, _ string) archive.Status {
				return console.ctrl.EmergencyCleanup(cmd.Context(), token)
			})
		}
		return console.runConfirmed(archive.ActionCleanup, "", func(token, _ string) archive.Status {
			return console.ctrl.ExecuteCleanup(cmd.Context(), token)
		})
	},
}

var clearAllCmd = &cobra.Command{
	Use:   "clear-all",
	Short: "Delete every attendance, assessment and archive record",
	Long: `Delete ALL attendance, assessment and archive records and every stored photo.

User accounts are kept. The confirmation phrase must be typed exactly; --yes does
not skip it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return console.runConfirmed(archive.ActionClearAll, actionFlags.phrase, func(token, phrase string) archive.Status {
			return console.ctrl.ClearAllData(cmd.Context(), token, phrase)
		})
	},
}

func init() {
	rootCmd.AddCommand(markCompleteCmd, cleanupCmd, clearAllCmd)

	cleanupCmd.Flags().BoolVar(&actionFlags.emergency, "emergency", false, "run outside the cleanup window")
	clearAllCmd.Flags().StringVar(&actionFlags.phrase, "phrase", "", "confirmation phrase, for non-interactive use")
}
