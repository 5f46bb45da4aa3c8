package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/vitaminmoo/gattprov/internal/dispatch"
	"github.com/vitaminmoo/gattprov/internal/provision"
	"github.com/vitaminmoo/gattprov/internal/stack"
)

// Options configures Run.
type Options struct {
	StepTimeout time.Duration
	Save        SaveFunc
	// ProgramOptions are passed to tea.NewProgram after the defaults.
	ProgramOptions []tea.ProgramOption
}

// viewHook forwards log entries to the view while the alternate screen
// owns the terminal.
type viewHook struct {
	ctx    context.Context
	events chan<- tea.Msg
}

func (h *viewHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel}
}

func (h *viewHook) Fire(e *logrus.Entry) error {
	fields := make(logrus.Fields, len(e.Data))
	for k, v := range e.Data {
		fields[k] = v
	}
	send(h.ctx, h.events, logMsg{level: e.Level, message: e.Message, fields: fields})
	return nil
}

func send(ctx context.Context, events chan<- tea.Msg, msg tea.Msg) {
	select {
	case events <- msg:
	case <-ctx.Done():
	}
}

// Run provisions machine over st with a live progress view. It returns once
// the user quits; quitting before the table is complete cancels the run.
func Run(ctx context.Context, st stack.Stack, machine *provision.Machine, log *logrus.Logger, opts Options) (provision.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan tea.Msg, 64)

	out := log.Out
	log.SetOutput(io.Discard)
	defer log.SetOutput(out)
	prev := log.ReplaceHooks(make(logrus.LevelHooks))
	defer log.ReplaceHooks(prev)
	log.AddHook(&viewHook{ctx: ctx, events: events})

	d := dispatch.New(st, machine, log, dispatch.Options{
		StepTimeout: opts.StepTimeout,
		Observer: func(p provision.Progress) {
			send(ctx, events, progressMsg{progress: p})
		},
	})

	m := NewModel(machine.Result(), machine.Progress().Total, events, opts.Save)

	type outcome struct {
		res provision.Result
		err error
	}
	finished := make(chan outcome, 1)
	go func() {
		res, err := d.Run(ctx)
		finished <- outcome{res, err}
		send(ctx, events, doneMsg{result: res, err: err})
	}()

	p := tea.NewProgram(m, append([]tea.ProgramOption{tea.WithAltScreen()}, opts.ProgramOptions...)...)

	_, err := p.Run()
	cancel()
	o := <-finished
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		return o.res, err
	}
	return o.res, o.err
}
