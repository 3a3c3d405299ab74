package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/noah-isme/attendance-archive-api/internal/archive"
)

// errCancelled is returned when the operator declines a confirmation.
var errCancelled = errors.New("cancelled")

// statusError makes a failed action exit non-zero after its message was printed.
type statusError struct {
	status archive.Status
}

func (e statusError) Error() string { return e.status.Message }

func statusErr(st archive.Status) error { return statusError{status: st} }

// confirm asks a yes/no question. Anything but y or yes declines.
func confirm(in *bufio.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := readLine(in)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// askPhrase reads the typed confirmation phrase without trimming inner spaces.
func askPhrase(in *bufio.Reader, out io.Writer, phrase string) (string, error) {
	fmt.Fprintf(out, "Type %q to continue: ", phrase)
	return readLine(in)
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) && line != "":
	case errors.Is(err, io.EOF):
		return "", errCancelled
	default:
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// printStatus writes the outcome of an action and converts failures into an error.
func printStatus(out io.Writer, st archive.Status) error {
	if !st.OK() {
		return statusErr(st)
	}
	if st.Message != "" {
		fmt.Fprintln(out, st.Message)
	}
	return nil
}

// runConfirmed performs the two-phase flow of a destructive action.
func (s *session) runConfirmed(kind archive.ActionKind, phrase string, action func(token, phrase string) archive.Status) error {
	conf, err := s.ctrl.RequestConfirmation(kind)
	if err != nil {
		return err
	}

	fmt.Fprintln(s.out, conf.Prompt)
	fmt.Fprintln(s.out)

	if conf.RequiresPhrase {
		if phrase == "" {
			typed, err := askPhrase(s.in, s.out, s.phrase)
			if err != nil {
				return err
			}
			phrase = typed
		}
	} else if !s.yes {
		ok, err := confirm(s.in, s.out, "Proceed?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(s.out, "Cancelled.")
			return nil
		}
	}

	return printStatus(s.out, action(conf.Token, phrase))
}
