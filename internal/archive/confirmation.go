package archive

import (
	"errors"
	"time"

	"github.com/noah-isme/attendance-archive-api/pkg/confirm"
)

// ActionKind names a destructive action that needs an explicit confirmation.
type ActionKind string

const (
	ActionMarkComplete     ActionKind = "mark_complete"
	ActionCleanup          ActionKind = "cleanup"
	ActionEmergencyCleanup ActionKind = "emergency_cleanup"
	ActionClearAll         ActionKind = "clear_all"
)

// DefaultClearAllPhrase must be typed exactly to clear all data.
const DefaultClearAllPhrase = "DELETE ALL DATA"

// Confirmation is the first phase of a destructive action. The host shows Prompt, collects
// consent (and the phrase when RequiresPhrase), then passes Token to the action.
type Confirmation struct {
	Kind           ActionKind
	Token          string
	Prompt         string
	RequiresPhrase bool
	ExpiresAt      time.Time
}

var prompts = map[ActionKind]string{
	ActionMarkComplete: "Mark the current month as complete?\n\n" +
		"Confirm that you have:\n" +
		"  - exported attendance and assessments\n" +
		"  - downloaded the monthly report\n" +
		"  - verified the attendance photos are backed up\n\n" +
		"Once complete, this month's records are deleted during the first days of next month.",
	ActionCleanup: "WARNING: this permanently deletes the completed month's\n" +
		"  - attendance photos\n" +
		"  - attendance records\n" +
		"  - assessment records\n\n" +
		"Make sure everything is backed up. Continue?",
	ActionEmergencyCleanup: "EMERGENCY OVERRIDE: cleanup will run outside the normal window.\n\n" +
		"The completed month's photos, attendance and assessment records are deleted permanently. Continue?",
	ActionClearAll: "DANGER: this deletes ALL attendance, assessment and archive records for every month.\n" +
		"User accounts are kept. This cannot be undone.\n\n" +
		"Type the confirmation phrase to continue.",
}

func knownAction(kind ActionKind) bool {
	_, ok := prompts[kind]
	return ok
}

func confirmationError(err error) *ActionError {
	switch {
	case errors.Is(err, confirm.ErrExpired):
		return NewActionError(ValidationError, "confirmation expired, please confirm again", err)
	case errors.Is(err, confirm.ErrReused):
		return NewActionError(ValidationError, "confirmation already used, please confirm again", err)
	case errors.Is(err, confirm.ErrKind):
		return NewActionError(ValidationError, "confirmation was given for a different action", err)
	default:
		return NewActionError(ValidationError, "confirmation required", err)
	}
}
