package scan

import (
	"fmt"
	"time"

	"github.com/ostafen/sigscan/internal/pattern"
)

// UnknownDescription is reported for files no rule matched.
const UnknownDescription = "Unknown file type"

// Outcome tells how a file ended up after classification.
type Outcome int

const (
	// Classified files matched at least one rule.
	Classified Outcome = iota
	// Unknown files were read but matched no rule.
	Unknown
	// NotFound files could not be read.
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Classified:
		return "classified"
	case Unknown:
		return "unknown"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the classification of a single file.
type Result struct {
	Name    string // base name of the file
	Path    string
	Size    int
	Rule    pattern.Rule // winning rule, valid when Matched is true
	Matched bool
	Err     error // read failure, set for NotFound results
}

func (r Result) Outcome() Outcome {
	switch {
	case r.Err != nil:
		return NotFound
	case r.Matched:
		return Classified
	default:
		return Unknown
	}
}

// Description returns the description of the winning rule, or
// UnknownDescription when there is none.
func (r Result) Description() string {
	if r.Err == nil && r.Matched {
		return r.Rule.Description()
	}
	return UnknownDescription
}

// Stats counts the work done by a scan. Counters are computed from the
// results actually delivered, so a partial scan reports real numbers.
type Stats struct {
	Total      int // files listed for scanning
	Submitted  int // files handed to the worker pool
	Completed  int // results delivered
	Classified int
	Unknown    int
	NotFound   int
	Bytes      int64
	Elapsed    time.Duration
}

// Pending returns the number of files whose result was not delivered.
func (s Stats) Pending() int {
	return s.Total - s.Completed
}

func (s *Stats) add(r Result) {
	s.Completed++
	s.Bytes += int64(r.Size)

	switch r.Outcome() {
	case Classified:
		s.Classified++
	case Unknown:
		s.Unknown++
	case NotFound:
		s.NotFound++
	}
}

// FormatDurationHMS formats a time.Duration into HH:MM:SS string.
// Durations below one second are printed with two decimals.
func FormatDurationHMS(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	totalSeconds := int64(d.Seconds())

	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
