package main

import (
	"fmt"
	"strconv"
	"strings"
)

type commandKind int

const (
	cmdAnswer commandKind = iota
	cmdStart
	cmdSubmit
	cmdHide
	cmdShow
	cmdBack
	cmdRetryResult
	cmdHelp
	cmdQuit
)

type command struct {
	kind commandKind
	// question and choice are 1-based as typed.
	question int
	choice   int
	course   string
}

var keywords = map[string]commandKind{
	"start":        cmdStart,
	"submit":       cmdSubmit,
	"hide":         cmdHide,
	"show":         cmdShow,
	"back":         cmdBack,
	"retry-result": cmdRetryResult,
	"help":         cmdHelp,
	"?":            cmdHelp,
	"quit":         cmdQuit,
	"exit":         cmdQuit,
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{kind: cmdShow}, nil
	}

	if kind, ok := keywords[fields[0]]; ok {
		cmd := command{kind: kind}
		switch {
		case kind == cmdStart && len(fields) == 2:
			cmd.course = strings.Fields(line)[1]
		case kind == cmdStart && len(fields) == 1:
		case len(fields) != 1:
			return command{}, fmt.Errorf("%s takes no arguments", fields[0])
		}
		return cmd, nil
	}

	if len(fields) != 2 {
		return command{}, fmt.Errorf("unknown command %q, type help", fields[0])
	}
	q, err := strconv.Atoi(fields[0])
	if err != nil || q < 1 {
		return command{}, fmt.Errorf("unknown command %q, type help", fields[0])
	}
	choice, err := parseChoice(fields[1])
	if err != nil {
		return command{}, err
	}
	return command{kind: cmdAnswer, question: q, choice: choice}, nil
}

// parseChoice accepts a 1-based number or a letter (a = 1).
func parseChoice(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return 0, fmt.Errorf("choice must be 1 or more")
		}
		return n, nil
	}
	if len(s) == 1 && s[0] >= 'a' && s[0] <= 'z' {
		return int(s[0]-'a') + 1, nil
	}
	return 0, fmt.Errorf("invalid choice %q", s)
}

const helpText = `Commands:
  <question#> <choice>   select an answer (choice as 1, 2, ... or a, b, ...)
  submit                 submit the attempt
  hide                   report that the quiz was hidden
  show                   print the current view
  back                   leave the attempt and return to the dashboard
  start [course]         start or resume an attempt
  retry-result           fetch the result again
  quit                   leave and exit`
