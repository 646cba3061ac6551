// Package progress renders provisioning feedback on an interactive terminal.
package progress

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// Printer collapses repeated status lines and draws byte progress in place,
// the way a model pull reports dozens of identical status events followed by
// a stream of completed/total updates.
type Printer struct {
	out        io.Writer
	lastStatus string
	inline     bool
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Status prints a status line, skipping consecutive repeats. Lines carrying
// their own percentage are dropped too; Bytes owns percent rendering.
func (p *Printer) Status(msg string) {
	if msg == "" || msg == p.lastStatus || strings.Contains(msg, "%") {
		return
	}
	p.endInline()
	fmt.Fprintln(p.out, msg)
	p.lastStatus = msg
}

// Bytes redraws the in-place progress line for a named download. A zero or
// unknown total degrades to a plain byte count.
func (p *Printer) Bytes(name string, read, total int64) {
	if total > 0 {
		pct := float64(read) / float64(total) * 100
		fmt.Fprintf(p.out, "\r%s: %.1f%% (%s / %s)", name, pct, humanize.Bytes(uint64(read)), humanize.Bytes(uint64(total)))
	} else {
		fmt.Fprintf(p.out, "\r%s: %s", name, humanize.Bytes(uint64(read)))
	}
	p.inline = true
}

// Finish closes any in-place line and resets the repeat filter.
func (p *Printer) Finish() {
	p.endInline()
	p.lastStatus = ""
}

func (p *Printer) endInline() {
	if p.inline {
		fmt.Fprintln(p.out)
		p.inline = false
	}
}
