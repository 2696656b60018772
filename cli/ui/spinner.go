package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var SectionHeaderColor = color.New(color.FgHiWhite, color.BgBlue, color.Bold)

type Spinner struct {
	*spinner.Spinner
	msg string
}

// NewSpinner starts a spinner with the given message. It returns nil when
// stderr is not a terminal, all methods are no-ops on a nil Spinner.
func NewSpinner(msg string) *Spinner {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}

	s := &Spinner{
		spinner.New(
			spinner.CharSets[14],
			200*time.Millisecond,
			spinner.WithHiddenCursor(true),
			spinner.WithWriter(os.Stderr),
			spinner.WithSuffix(" "+msg),
		),
		msg,
	}
	s.Start()
	return s
}

func (s *Spinner) UpdateMessage(msg string) {
	if s == nil {
		return
	}
	s.Spinner.Suffix = " " + msg
	s.msg = msg
}

func (s *Spinner) Success(msg ...string) {
	s.finish(color.HiGreenString("✓"), msg)
}

func (s *Spinner) Warn(msg ...string) {
	s.finish(color.HiYellowString("!"), msg)
}

func (s *Spinner) Fail(msg ...string) {
	s.finish(color.HiRedString("✗"), msg)
}

func (s *Spinner) finish(mark string, msg []string) {
	if s == nil {
		return
	}
	if len(msg) == 0 {
		msg = []string{s.msg}
	}
	s.Spinner.FinalMSG = fmt.Sprintf("%s %s\n", mark, msg[0])
	s.Stop()
}
