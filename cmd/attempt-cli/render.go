package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/notify"
)

func formatClock(t model.TimerState) string {
	if t.Unlimited() {
		return "no limit"
	}
	s := t.RemainingSeconds
	if s < 0 {
		s = 0
	}
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s%3600/60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

func prompt(v attempt.View) string {
	if v.State == attempt.Solving {
		return fmt.Sprintf("[%s] > ", formatClock(v.Timer))
	}
	return fmt.Sprintf("(%s) > ", strings.ToLower(v.State.String()))
}

func renderView(w io.Writer, v attempt.View) {
	switch v.State {
	case attempt.Solving, attempt.AutoSubmitting, attempt.ManualSubmitting:
		renderSession(w, v)
	case attempt.Result:
		renderResult(w, v)
	default:
		fmt.Fprintf(w, "State: %s\n", v.State)
	}
}

func renderSession(w io.Writer, v attempt.View) {
	if v.Session == nil {
		return
	}
	s := v.Session
	fmt.Fprintf(w, "\nAttempt #%d of %s  time left %s  answered %d/%d  save %s\n",
		s.AttemptNumber, s.CourseID, formatClock(v.Timer), len(v.Answers), len(s.Questions), v.SaveStatus)
	for i, q := range s.Questions {
		fmt.Fprintf(w, "\n%d. %s\n", i+1, q.Prompt)
		selected, answered := v.Answers[q.ID]
		for j, choice := range q.Choices {
			mark := " "
			if answered && selected == j {
				mark = "x"
			}
			fmt.Fprintf(w, "   [%s] %c) %s\n", mark, 'a'+j, choice)
		}
	}
	fmt.Fprintln(w)
}

func renderResult(w io.Writer, v attempt.View) {
	if v.Result == nil {
		fmt.Fprintln(w, "Result is not available yet. Type retry-result to fetch it again.")
		return
	}
	r := v.Result
	verdict := "unknown"
	switch r.Passed {
	case model.True:
		verdict = "PASSED"
	case model.False:
		verdict = "NOT PASSED"
	}
	fmt.Fprintf(w, "\nScore %s  %s\n", r.FormatScore(), verdict)
	fmt.Fprintf(w, "Correct %s  wrong %s  total %s\n",
		model.FormatCount(r.Correct), model.FormatCount(r.Wrong), model.FormatCount(r.Total))
	if r.PassScore != nil {
		fmt.Fprintf(w, "Pass score %g\n", *r.PassScore)
	}
	switch r.Retry.CanRetry {
	case model.True:
		if r.Retry.RemainingAttempts != nil {
			fmt.Fprintf(w, "You may retry (%d attempts left). Type start.\n", *r.Retry.RemainingAttempts)
		} else {
			fmt.Fprintln(w, "You may retry. Type start.")
		}
	case model.False:
		fmt.Fprintln(w, "No attempts left.")
	}
	if r.Derived {
		fmt.Fprintln(w, "(computed locally, the server result was unavailable)")
	}
	fmt.Fprintln(w)
}

func renderNotification(w io.Writer, n notify.Notification) {
	if n.Description != "" {
		fmt.Fprintf(w, "\n* [%s] %s: %s\n", n.Kind, n.Title, n.Description)
		return
	}
	fmt.Fprintf(w, "\n* [%s] %s\n", n.Kind, n.Title)
}
