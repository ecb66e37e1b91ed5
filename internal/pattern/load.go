// Package pattern loads the signature table used to classify files.
//
// A table file holds one record per line:
//
//	priority;"pattern";"description"
//
// The pattern and description fields may be wrapped in double quotes, which
// are stripped. Inside the pattern field, \xHH stands for a single byte and
// \\ for a backslash. Blank lines and lines starting with '#' are ignored.
// Malformed records are skipped with a warning.
package pattern

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("pattern file not found")

var (
	errFieldCount    = errors.New("expected 3 fields")
	errEmptyPattern  = errors.New("empty pattern")
	errInvalidEscape = errors.New("invalid escape sequence")
	errRecordTooLong = fmt.Errorf("record longer than %d bytes", MaxRecordSize)
)

const (
	fieldSep   = ";"
	commentTag = "#"
)

// Load reads the table stored at path. A file that does not exist or cannot
// be read yields an error wrapping ErrNotFound. A readable file without any
// valid record yields an empty table.
func Load(path string, logger zerolog.Logger) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	defer f.Close()

	t, err := Parse(f, path, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return t, nil
}

// MaxRecordSize is the longest accepted record. Longer lines are skipped
// like any other malformed record.
const MaxRecordSize = 1024 * 1024

// Parse reads table records from r. name only appears in diagnostics.
// The returned error is non-nil only when r itself fails.
func Parse(r io.Reader, name string, logger zerolog.Logger) (Table, error) {
	var t Table

	br := bufio.NewReaderSize(r, 64*1024)

	lineNo := 0
	for {
		line, tooLong, err := readLine(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		lineNo++

		line = strings.TrimSuffix(line, "\r")
		if !tooLong && (strings.TrimSpace(line) == "" || strings.HasPrefix(line, commentTag)) {
			continue
		}

		var rule Rule
		if tooLong {
			err = errRecordTooLong
		} else {
			rule, err = ParseRecord(line)
		}
		if err != nil {
			logger.Warn().
				Str("file", name).
				Int("line", lineNo).
				Err(err).
				Msg("bad record")
			continue
		}
		t = append(t, rule)
	}

	logger.Debug().Str("file", name).Int("rules", len(t)).Msg("pattern table loaded")
	return t, nil
}

// readLine returns the next line without its terminator. A line longer than
// MaxRecordSize is consumed entirely and reported with tooLong set and an
// empty line. io.EOF is returned only once no bytes are left.
func readLine(br *bufio.Reader) (string, bool, error) {
	var (
		buf     []byte
		tooLong bool
	)

	for read := false; ; read = true {
		chunk, isPrefix, err := br.ReadLine()
		if err == io.EOF && read {
			break
		}
		if err != nil {
			return "", false, err
		}

		if !tooLong && len(buf)+len(chunk) > MaxRecordSize {
			tooLong, buf = true, nil
		}
		if !tooLong {
			buf = append(buf, chunk...)
		}

		if !isPrefix {
			break
		}
	}
	return string(buf), tooLong, nil
}

// ParseRecord parses a single priority;"pattern";"description" record.
func ParseRecord(line string) (Rule, error) {
	fields := strings.Split(line, fieldSep)

	// trailing empty fields do not count as fields
	for len(fields) > 0 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}

	if len(fields) != 3 {
		return Rule{}, fmt.Errorf("%w, got %d", errFieldCount, len(fields))
	}

	priority, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return Rule{}, fmt.Errorf("invalid priority %q: %w", fields[0], err)
	}

	sig, err := unescape(stripQuotes(fields[1]))
	if err != nil {
		return Rule{}, err
	}
	if len(sig) == 0 {
		return Rule{}, errEmptyPattern
	}
	return NewRule(priority, sig, stripQuotes(fields[2])), nil
}

func stripQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}

func unescape(s string) ([]byte, error) {
	if !strings.Contains(s, `\`) {
		return []byte(s), nil
	}

	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out = append(out, c)
			continue
		}

		switch s[i+1] {
		case '\\':
			out = append(out, '\\')
			i++
		case 'x':
			if i+4 > len(s) {
				return nil, fmt.Errorf("%w at offset %d", errInvalidEscape, i)
			}
			v, err := strconv.ParseUint(s[i+2:i+4], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("%w at offset %d", errInvalidEscape, i)
			}
			out = append(out, byte(v))
			i += 3
		default:
			out = append(out, c)
		}
	}
	return out, nil
}
