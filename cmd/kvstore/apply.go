package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/scott-cotton/cli"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/tailored-agentic-units/kvcache/subscription"
)

func apply(cfg *ApplyConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Apply.Parse(cc, args)
	if err != nil {
		return err
	}
	if cfg.Watch == "" {
		return fmt.Errorf("%w: apply requires -watch", cli.ErrUsage)
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: apply requires one argument, a file or -", cli.ErrUsage)
	}
	ops, err := operationsArg(cc, args[0])
	if err != nil {
		return err
	}

	w, err := newWatcher(cc.Out, cfg.Where, useColor(cc.Out))
	if err != nil {
		return fmt.Errorf("%w: %w", cli.ErrUsage, err)
	}

	s, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.Connect(subscription.Options{
		Key:                       cfg.Watch,
		Callback:                  w.deliver,
		WaitForCollectionCallback: cfg.Aggregate,
	})
	if err != nil {
		return err
	}
	defer s.Disconnect(id)

	ctx := cfg.runContext()
	updateErr := s.Update(ctx, ops)
	if err := s.Flush(ctx); err != nil {
		return err
	}
	if err := w.Err(); err != nil {
		return err
	}
	return updateErr
}

func useColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// watcher prints each delivery as a line diff against the previous value
// delivered for the same key.
type watcher struct {
	out    io.Writer
	filter *vm.Program
	prev   map[string][]byte

	header *color.Color
	insert *color.Color
	remove *color.Color

	mu  sync.Mutex
	err error
}

func newWatcher(out io.Writer, where string, colored bool) (*watcher, error) {
	w := &watcher{
		out:    out,
		prev:   make(map[string][]byte),
		header: color.New(color.Bold, color.FgCyan),
		insert: color.New(color.FgGreen),
		remove: color.New(color.FgRed),
	}
	for _, c := range []*color.Color{w.header, w.insert, w.remove} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	if where != "" {
		prg, err := expr.Compile(where,
			expr.Env(map[string]any{"key": "", "value": nil}),
			expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("invalid -where expression: %w", err)
		}
		w.filter = prg
	}
	return w, nil
}

// Err returns the first error raised while printing deliveries.
func (w *watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *watcher) deliver(value any, key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return
	}
	ok, err := w.match(value, key)
	if err != nil {
		w.err = err
		return
	}
	if !ok {
		return
	}

	next := toJSON(value)
	prev, seen := w.prev[key]
	w.prev[key] = next
	if !seen {
		prev = toJSON(nil)
	}

	w.header.Fprintf(w.out, "== %s\n", key)
	for _, line := range lineDiff(string(prev), string(next)) {
		switch line.op {
		case diffpatch.DiffInsert:
			w.insert.Fprintf(w.out, "+ %s\n", line.text)
		case diffpatch.DiffDelete:
			w.remove.Fprintf(w.out, "- %s\n", line.text)
		default:
			fmt.Fprintf(w.out, "  %s\n", line.text)
		}
	}
}

func (w *watcher) match(value any, key string) (bool, error) {
	if w.filter == nil {
		return true, nil
	}
	out, err := expr.Run(w.filter, map[string]any{"key": key, "value": value})
	if err != nil {
		return false, fmt.Errorf("-where on %s: %w", key, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

type diffLine struct {
	op   diffpatch.Operation
	text string
}

// lineDiff compares two documents line by line.
func lineDiff(from, to string) []diffLine {
	dmp := diffpatch.New()
	a, b, lines := dmp.DiffLinesToChars(from+"\n", to+"\n")
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []diffLine
	for _, d := range diffs {
		text := d.Text
		if len(text) > 0 && text[len(text)-1] == '\n' {
			text = text[:len(text)-1]
		}
		for _, line := range strings.Split(text, "\n") {
			out = append(out, diffLine{op: d.Type, text: line})
		}
	}
	return out
}
