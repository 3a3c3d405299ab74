package main

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-archive-api/internal/archive"
)

type backendStub struct {
	summary archive.Summary
}

func (b *backendStub) GetArchiveSummary(context.Context) (archive.Summary, error) {
	return b.summary, nil
}
func (b *backendStub) MarkArchiveComplete(context.Context) error { return nil }
func (b *backendStub) ExecuteCleanup(context.Context, bool) (archive.CleanupOutcome, error) {
	return archive.CleanupOutcome{}, nil
}
func (b *backendStub) ClearAllData(context.Context, string) (archive.ClearOutcome, error) {
	return archive.ClearOutcome{}, nil
}
func (b *backendStub) Export(context.Context, archive.ExportRequest) (archive.Artifact, error) {
	return archive.Artifact{}, nil
}
func (b *backendStub) ListProfessors(context.Context) ([]archive.Professor, error) { return nil, nil }

func newTestSession(t *testing.T, input string, yes bool) (*session, *bytes.Buffer) {
	t.Helper()
	user := &archive.Session{User: archive.User{ID: "u-1", Role: "ADMIN"}}
	ctrl := archive.NewController(&backendStub{}, archive.DirSaver{Dir: t.TempDir()}, user, archive.Config{})
	out := &bytes.Buffer{}
	return &session{
		ctrl:   ctrl,
		in:     bufio.NewReader(strings.NewReader(input)),
		out:    out,
		yes:    yes,
		phrase: archive.DefaultClearAllPhrase,
	}, out
}

func TestConfirmAnswers(t *testing.T) {
	cases := map[string]bool{"y\n": true, "YES\n": true, "\n": false, "no\n": false, "yes": true}
	for input, want := range cases {
		ok, err := confirm(bufio.NewReader(strings.NewReader(input)), &bytes.Buffer{}, "Proceed?")
		require.NoError(t, err, input)
		assert.Equal(t, want, ok, input)
	}
}

func TestReadLineClosedInputCancels(t *testing.T) {
	_, err := readLine(bufio.NewReader(strings.NewReader("")))
	require.ErrorIs(t, err, errCancelled)
}

func TestRunConfirmedDeclineSkipsAction(t *testing.T) {
	s, out := newTestSession(t, "n\n", false)
	called := false

	err := s.runConfirmed(archive.ActionCleanup, "", func(token, _ string) archive.Status {
		called = true
		return archive.Status{Level: archive.LevelSuccess}
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Contains(t, out.String(), "WARNING")
	assert.Contains(t, out.String(), "Cancelled.")
}

func TestRunConfirmedYesFlagSkipsQuestion(t *testing.T) {
	s, out := newTestSession(t, "", true)
	var gotToken string

	err := s.runConfirmed(archive.ActionMarkComplete, "", func(token, _ string) archive.Status {
		gotToken = token
		return archive.Status{Level: archive.LevelSuccess, Message: "March 2025 marked complete"}
	})
	require.NoError(t, err)
	assert.NotEmpty(t, gotToken)
	assert.Contains(t, out.String(), "March 2025 marked complete")
	assert.NotContains(t, out.String(), "[y/N]")
}

func TestRunConfirmedClearAllAlwaysAsksPhrase(t *testing.T) {
	s, out := newTestSession(t, "DELETE ALL DATA\n", true)
	var gotPhrase string

	err := s.runConfirmed(archive.ActionClearAll, "", func(_, phrase string) archive.Status {
		gotPhrase = phrase
		return archive.Status{Level: archive.LevelSuccess}
	})
	require.NoError(t, err)
	assert.Equal(t, "DELETE ALL DATA", gotPhrase)
	assert.Contains(t, out.String(), `Type "DELETE ALL DATA" to continue`)
}

func TestRunConfirmedReportsFailure(t *testing.T) {
	s, _ := newTestSession(t, "y\n", false)

	err := s.runConfirmed(archive.ActionCleanup, "", func(string, string) archive.Status {
		return archive.Status{Level: archive.LevelError, Kind: archive.ServerLogicError, Message: "Cleanup failed: not completed"}
	})
	require.Error(t, err)
	assert.Equal(t, "Cleanup failed: not completed", err.Error())
}

func TestRenderViewListsAllowedActions(t *testing.T) {
	out := &bytes.Buffer{}
	renderView(out, archive.View{
		Loaded:      true,
		IsAdmin:     true,
		CanExport:   true,
		CanClearAll: true,
		Summary: archive.Summary{
			CurrentMonthLabel: "March 2025",
			Current:           archive.Period{Year: 2025, Month: 3, State: archive.StateOpen},
		},
	})

	text := out.String()
	assert.Contains(t, text, "March 2025 (OPEN)")
	assert.Regexp(t, `Cleanup target:\s+none`, text)
	assert.Contains(t, text, "  export\n")
	assert.Contains(t, text, "  clear-all\n")
	assert.NotContains(t, text, "mark-complete")
}

func TestHelpPlacesCleanupWindowAtMonthStart(t *testing.T) {
	for _, cmd := range []*cobra.Command{rootCmd, cleanupCmd} {
		assert.Contains(t, cmd.Long, "days 1-3 at", cmd.Name())
		assert.NotContains(t, cmd.Long, "end of the", cmd.Name())
	}
}
