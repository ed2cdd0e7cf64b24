package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/yegors/skyfetch/internal/fetch"
)

// progressPrinter renders a single updating progress line on stderr. In
// quiet mode the line only appears on an interactive terminal.
type progressPrinter struct {
	mu      sync.Mutex
	enabled bool
	active  bool
}

func newProgressPrinter(quiet bool) *progressPrinter {
	enabled := true
	if quiet {
		enabled = isatty.IsTerminal(os.Stderr.Fd())
	}
	return &progressPrinter{enabled: enabled}
}

// Update is the aggregator's incremental progress signal.
func (p *progressPrinter) Update(prog fetch.Progress) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = true
	fmt.Fprintf(os.Stderr, "\rFetching: %d/%d (fetched %d, empty %d, skipped %d, failed %d)",
		prog.Done, prog.Planned, prog.Fetched, prog.Empty, prog.Skipped, prog.Failed)
}

// Finish terminates the progress line so later output starts clean.
func (p *progressPrinter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		fmt.Fprintln(os.Stderr)
		p.active = false
	}
}
