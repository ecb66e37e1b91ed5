// Package report prints classification results.
package report

import (
	"fmt"
	"io"

	"github.com/ostafen/sigscan/internal/scan"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	Text Format = "text"
	YAML Format = "yaml"
)

// Printer writes one entry per result. It is not safe for concurrent use.
type Printer struct {
	w      io.Writer
	format Format
	enc    *yaml.Encoder
}

func NewPrinter(w io.Writer, f Format) (*Printer, error) {
	p := &Printer{w: w, format: f}

	switch f {
	case Text:
	case YAML:
		p.enc = yaml.NewEncoder(w)
		p.enc.SetIndent(2)
	default:
		return nil, fmt.Errorf("unsupported output format %q", f)
	}
	return p, nil
}

type entry struct {
	File        string `yaml:"file"`
	Description string `yaml:"description"`
	Outcome     string `yaml:"outcome"`
	Priority    *int   `yaml:"priority,omitempty"`
	Size        int    `yaml:"size"`
	Error       string `yaml:"error,omitempty"`
}

// Print writes r. Unreadable files are reported as not found rather than
// with the unknown file type description.
func (p *Printer) Print(r scan.Result) error {
	if p.enc != nil {
		return p.enc.Encode(toEntry(r))
	}

	if r.Outcome() == scan.NotFound {
		_, err := fmt.Fprintf(p.w, "File %s not found\n", r.Name)
		return err
	}
	_, err := fmt.Fprintf(p.w, "%s: %s\n", r.Name, r.Description())
	return err
}

// Close flushes any buffered output.
func (p *Printer) Close() error {
	if p.enc != nil {
		return p.enc.Close()
	}
	return nil
}

func toEntry(r scan.Result) entry {
	e := entry{
		File:        r.Name,
		Description: r.Description(),
		Outcome:     r.Outcome().String(),
		Size:        r.Size,
	}

	if r.Outcome() == scan.Classified {
		prio := r.Rule.Priority()
		e.Priority = &prio
	}
	if r.Err != nil {
		e.Error = r.Err.Error()
	}
	return e
}
