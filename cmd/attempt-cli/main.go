package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/notify"
	"github.com/stemsi/exstem-attempt/internal/remote"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Quiz service base URL")
	flag.StringVar(&cfg.NISN, "nisn", cfg.NISN, "Student NISN")
	course := flag.String("course", "", "Course to start right after login")
	flag.Parse()

	// ─── Initialize Logger ─────────────────────────────────────────────
	// stdout belongs to the session.
	log := logger.SetupWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in := bufio.NewReader(os.Stdin)
	out := &syncWriter{w: os.Stdout}

	// ─── Remote Client ─────────────────────────────────────────────────
	client := remote.New(cfg.BaseURL, &http.Client{}, remote.Timeouts{
		Read:   cfg.ReadTimeout,
		Write:  cfg.WriteTimeout,
		Submit: cfg.SubmitTimeout,
	}, log)

	if err := login(ctx, client, in, out, cfg.NISN); err != nil {
		log.Fatal().Err(err).Msg("Login failed")
	}

	// ─── Controller ────────────────────────────────────────────────────
	opts := attempt.Options{
		TickInterval:      cfg.TickInterval,
		ReconcileInterval: cfg.ReconcileInterval,
		PushInterval:      cfg.PushInterval,
		SaveDebounce:      cfg.SaveDebounce,
		JitterThreshold:   cfg.JitterThreshold,
		FallbackDuration:  cfg.FallbackDuration,
		DefaultPassScore:  cfg.DefaultPassScore,
	}
	if cfg.TimerFeed {
		opts.Feed = client
	}
	notes := notify.New(cfg.NotificationTTL, log)
	ctrl := attempt.New(client, notes, opts, log)
	defer ctrl.Close()

	s := &session{ctrl: ctrl, out: out, log: log}
	notesCh, unsubscribe := notes.Subscribe()
	defer unsubscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watch(ctx, notesCh)
	}()

	fmt.Fprintln(out, "Logged in. Type help for commands.")
	if *course != "" {
		s.start(ctx, *course)
	}
	quit := s.repl(ctx, in)

	// Leave the attempt before the process exits.
	leaveOnExit(ctrl, quit)
	ctrl.Close()
	drainCtx, cancel := context.WithTimeout(context.Background(), exitDrainTimeout)
	if err := ctrl.Drain(drainCtx); err != nil {
		log.Warn().Err(err).Msg("Leave not recorded before exit")
	}
	cancel()
	stop()
	wg.Wait()
}

// exitDrainTimeout bounds how long a leave may delay process exit.
const exitDrainTimeout = 3 * time.Second

type leaver interface {
	Leave(reason model.LeaveReason) error
}

// leaveOnExit records an unload when the process ends on a signal or end of
// input rather than an explicit quit.
func leaveOnExit(l leaver, quit bool) {
	if quit {
		return
	}
	_ = l.Leave(model.LeaveUnload)
}

func login(ctx context.Context, client *remote.Client, in *bufio.Reader, out io.Writer, nisn string) error {
	if nisn == "" {
		fmt.Fprint(out, "NISN: ")
		line, err := in.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read nisn: %w", err)
		}
		nisn = strings.TrimSpace(line)
	}

	password, err := readPassword(in, out)
	if err != nil {
		return err
	}
	return client.Login(ctx, nisn, password)
}

// readPassword disables echo when stdin is a terminal.
func readPassword(in *bufio.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

type session struct {
	ctrl       *attempt.Controller
	out        io.Writer
	log        zerolog.Logger
	lastCourse string
}

// repl reads commands until quit, end of input or ctx is done. It reports
// whether the student typed quit.
func (s *session) repl(ctx context.Context, in *bufio.Reader) bool {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := in.ReadString('\n')
			if line != "" || err == nil {
				lines <- line
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		fmt.Fprint(s.out, prompt(s.ctrl.Snapshot()))
		var line string
		select {
		case <-ctx.Done():
			return false
		case l, ok := <-lines:
			if !ok {
				return false
			}
			line = l
		}

		cmd, err := parseCommand(line)
		if err != nil {
			fmt.Fprintln(s.out, err)
			continue
		}
		if cmd.kind == cmdQuit {
			return true
		}
		s.run(ctx, cmd)
	}
}

func (s *session) run(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdHelp:
		fmt.Fprintln(s.out, helpText)
	case cmdShow:
		renderView(s.out, s.ctrl.Snapshot())
	case cmdStart:
		course := cmd.course
		if course == "" {
			course = s.lastCourse
		}
		if course == "" {
			fmt.Fprintln(s.out, "start needs a course id")
			return
		}
		s.start(ctx, course)
	case cmdAnswer:
		s.answer(cmd.question, cmd.choice)
	case cmdSubmit:
		s.report(s.ctrl.Submit(ctx))
	case cmdHide:
		s.report(s.ctrl.Leave(model.LeaveHidden))
	case cmdBack:
		s.report(s.ctrl.BackToDashboard())
	case cmdRetryResult:
		s.report(s.ctrl.RetryResult(ctx))
	}
}

func (s *session) start(ctx context.Context, course string) {
	s.lastCourse = course
	fmt.Fprintf(s.out, "Starting %s...\n", course)
	if err := s.ctrl.Start(ctx, course); err != nil {
		s.report(err)
		return
	}
	renderView(s.out, s.ctrl.Snapshot())
}

func (s *session) answer(question, choice int) {
	v := s.ctrl.Snapshot()
	if v.Session == nil || v.State != attempt.Solving {
		fmt.Fprintln(s.out, "No attempt in progress.")
		return
	}
	if question > len(v.Session.Questions) {
		fmt.Fprintf(s.out, "There are only %d questions.\n", len(v.Session.Questions))
		return
	}
	q := v.Session.Questions[question-1]
	s.report(s.ctrl.SelectAnswer(q.ID, choice-1))
}

// report prints errors the controller did not already announce.
func (s *session) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, attempt.ErrIncompleteAnswers), errors.Is(err, attempt.ErrNoAttemptsLeft):
	case errors.Is(err, attempt.ErrBusy):
		fmt.Fprintln(s.out, "Busy, try again in a moment.")
	case errors.Is(err, attempt.ErrNotSolving):
		fmt.Fprintln(s.out, "No attempt in progress.")
	default:
		fmt.Fprintln(s.out, notify.Describe(err))
	}
}

// watch prints notifications and renders the result once an attempt ends.
func (s *session) watch(ctx context.Context, notes <-chan notify.Notification) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	last := s.ctrl.Snapshot().State
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notes:
			if !ok {
				return
			}
			renderNotification(s.out, n)
		case <-ticker.C:
			v := s.ctrl.Snapshot()
			if v.State != last && v.State == attempt.Result {
				renderView(s.out, v)
			}
			last = v.State
		}
	}
}

// syncWriter serializes writes from the prompt loop and the watcher.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
