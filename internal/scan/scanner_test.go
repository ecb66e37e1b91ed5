package scan_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ostafen/sigscan/internal/fs"
	"github.com/ostafen/sigscan/internal/pattern"
	"github.com/ostafen/sigscan/internal/scan"
	"github.com/stretchr/testify/require"
)

func testTable() pattern.Table {
	return pattern.Table{
		pattern.NewRule(1, []byte("MZ"), "DOS exe"),
		pattern.NewRule(5, []byte("MZ"), "PE exe"),
		pattern.NewRule(3, []byte("PK"), "zip-a"),
		pattern.NewRule(3, []byte("PK"), "zip-b"),
		pattern.NewRule(2, []byte("%PDF"), "PDF document"),
	}
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0644))
	}
}

func collect(t *testing.T, sc *scan.Scanner, dir string) (map[string]scan.Result, scan.Stats) {
	t.Helper()

	results := make(map[string]scan.Result)
	stats, err := sc.Scan(context.Background(), dir, func(r scan.Result) {
		_, dup := results[r.Name]
		require.False(t, dup, "duplicate result for %s", r.Name)
		results[r.Name] = r
	})
	require.NoError(t, err)
	return results, stats
}

func TestScanner_Scan(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"prog.exe":  "MZ\x90\x00\x03\x00",
		"arch.zip":  "PK\x03\x04payload",
		"doc.pdf":   "junk %PDF-1.7",
		"notes.txt": "plain text",
		"empty":     "",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0755))

	sc := scan.New(testTable(), scan.Options{Workers: 3, Timeout: 10 * time.Second})
	results, stats := collect(t, sc, dir)

	require.Len(t, results, 6)
	require.Equal(t, "PE exe", results["prog.exe"].Description())
	require.Equal(t, "zip-a", results["arch.zip"].Description())
	require.Equal(t, "PDF document", results["doc.pdf"].Description())
	require.Equal(t, scan.UnknownDescription, results["notes.txt"].Description())
	require.Equal(t, scan.Unknown, results["notes.txt"].Outcome())
	require.Equal(t, scan.Unknown, results["empty"].Outcome())

	sub := results["subdir"]
	require.Equal(t, scan.NotFound, sub.Outcome())
	require.Error(t, sub.Err)
	require.Equal(t, scan.UnknownDescription, sub.Description())

	require.Equal(t, 6, stats.Total)
	require.Equal(t, 6, stats.Submitted)
	require.Equal(t, 6, stats.Completed)
	require.Equal(t, 0, stats.Pending())
	require.Equal(t, 3, stats.Classified)
	require.Equal(t, 2, stats.Unknown)
	require.Equal(t, 1, stats.NotFound)
}

func TestScanner_OneResultPerFile(t *testing.T) {
	for _, k := range []int{1, 3, 250} {
		t.Run(fmt.Sprintf("files=%d", k), func(t *testing.T) {
			dir := t.TempDir()

			files := make(map[string]string, k)
			for i := 0; i < k; i++ {
				data := "nothing here"
				if i%2 == 0 {
					data = "xxMZxx"
				}
				files[fmt.Sprintf("f%04d", i)] = data
			}
			writeFiles(t, dir, files)

			sc := scan.New(testTable(), scan.Options{Workers: 10, Timeout: 30 * time.Second})
			results, stats := collect(t, sc, dir)

			require.Len(t, results, k)
			require.Equal(t, k, stats.Completed)
			require.Equal(t, (k+1)/2, stats.Classified)
			require.Equal(t, k/2, stats.Unknown)
		})
	}
}

func TestScanner_EmptyDirectory(t *testing.T) {
	sc := scan.New(testTable(), scan.Options{})

	stats, err := sc.Scan(context.Background(), t.TempDir(), func(scan.Result) {
		t.Fatal("no result expected")
	})
	require.NoError(t, err)
	require.Equal(t, 0, stats.Total)
}

func TestScanner_NotDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	writeFiles(t, dir, map[string]string{"file": "MZ"})

	sc := scan.New(testTable(), scan.Options{})

	_, err := sc.Scan(context.Background(), file, nil)
	require.ErrorIs(t, err, scan.ErrNotDirectory)

	_, err = sc.Scan(context.Background(), filepath.Join(dir, "missing"), nil)
	require.ErrorIs(t, err, scan.ErrNotDirectory)
}

type memContent []byte

func (c memContent) Bytes() []byte { return c }
func (c memContent) Close() error  { return nil }

func TestScanner_ReadFailure(t *testing.T) {
	errDenied := errors.New("permission denied")

	read := func(path string) (fs.Content, error) {
		if strings.HasSuffix(path, ".locked") {
			return nil, errDenied
		}
		return memContent("MZ"), nil
	}

	sc := scan.New(testTable(), scan.Options{Workers: 2, ReadFile: read})

	var got []scan.Result
	stats, err := sc.ScanFiles(context.Background(), []string{"a/one.exe", "a/two.locked"}, func(r scan.Result) {
		got = append(got, r)
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 1, stats.Classified)
	require.Equal(t, 1, stats.NotFound)

	for _, r := range got {
		if r.Name == "two.locked" {
			require.ErrorIs(t, r.Err, errDenied)
			require.Equal(t, scan.NotFound, r.Outcome())
		} else {
			require.Equal(t, "one.exe", r.Name)
			require.Equal(t, "PE exe", r.Description())
		}
	}
}

// blockingReader blocks reads of paths prefixed with "slow" until release
// is closed.
func blockingReader(release <-chan struct{}) fs.ReadFunc {
	return func(path string) (fs.Content, error) {
		if strings.HasPrefix(filepath.Base(path), "slow") {
			<-release
		}
		return memContent("PK"), nil
	}
}

func TestScanner_Timeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	paths := []string{"slow1", "fast1", "slow2", "fast2", "fast3", "fast4", "fast5", "fast6"}

	sc := scan.New(testTable(), scan.Options{
		Workers:  4,
		Timeout:  300 * time.Millisecond,
		ReadFile: blockingReader(release),
	})

	delivered := 0
	stats, err := sc.ScanFiles(context.Background(), paths, func(scan.Result) {
		delivered++
	})
	require.ErrorIs(t, err, scan.ErrTimedOut)

	require.Equal(t, 8, stats.Total)
	require.Equal(t, 8, stats.Submitted)
	require.Equal(t, 6, stats.Completed)
	require.Equal(t, 2, stats.Pending())
	require.Equal(t, 6, delivered)
}

func TestScanner_TimeoutStopsSubmission(t *testing.T) {
	before := runtime.NumGoroutine()

	var calls atomic.Int64
	release := make(chan struct{})
	blocking := blockingReader(release)

	sc := scan.New(testTable(), scan.Options{
		Workers:   1,
		QueueSize: 1,
		Timeout:   100 * time.Millisecond,
		ReadFile: func(path string) (fs.Content, error) {
			calls.Add(1)
			return blocking(path)
		},
	})

	paths := []string{"slow1", "slow2", "slow3", "slow4", "slow5"}
	stats, err := sc.ScanFiles(context.Background(), paths, nil)
	require.ErrorIs(t, err, scan.ErrTimedOut)
	require.Equal(t, 0, stats.Completed)
	require.Less(t, stats.Submitted, len(paths))

	// the read in progress completes, nothing else is picked up
	close(release)
	require.Never(t, func() bool { return calls.Load() > 1 }, 300*time.Millisecond, 10*time.Millisecond)

	// feeder and worker have exited; the extra goroutine runs the condition
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+1
	}, time.Second, 10*time.Millisecond)
}

func TestScanner_Interrupted(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := scan.New(testTable(), scan.Options{
		Workers:  2,
		Timeout:  time.Minute,
		ReadFile: blockingReader(release),
	})

	stats, err := sc.ScanFiles(ctx, []string{"slow1", "slow2", "slow3"}, nil)
	require.ErrorIs(t, err, scan.ErrInterrupted)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, stats.Completed)
	require.Equal(t, 3, stats.Pending())
}

func TestScanner_NoDeadline(t *testing.T) {
	read := func(string) (fs.Content, error) {
		time.Sleep(10 * time.Millisecond)
		return memContent("%PDF"), nil
	}

	sc := scan.New(testTable(), scan.Options{Workers: 2, ReadFile: read})

	stats, err := sc.ScanFiles(context.Background(), []string{"a", "b", "c", "d", "e"}, nil)
	require.NoError(t, err)
	require.Equal(t, 5, stats.Completed)
	require.Equal(t, 5, stats.Classified)
}

func TestScanner_ClassifyFile_LargeMappedFile(t *testing.T) {
	dir := t.TempDir()
	data := strings.Repeat("\x00", 64*1024) + "PK\x05\x06"
	writeFiles(t, dir, map[string]string{"big.zip": data})

	sc := scan.New(testTable(), scan.Options{ReadFile: fs.NewReader(1024).ReadFile})

	r := sc.ClassifyFile(filepath.Join(dir, "big.zip"))
	require.NoError(t, r.Err)
	require.Equal(t, len(data), r.Size)
	require.Equal(t, "zip-a", r.Description())
	require.Equal(t, 3, r.Rule.Priority())
}

type panicContent struct {
	fn func()
}

func (c panicContent) Bytes() []byte { c.fn(); return nil }
func (c panicContent) Close() error  { return nil }

func TestScanner_ClassifyFile_PanicPropagates(t *testing.T) {
	tests := map[string]func(){
		"value": func() { panic("boom") },
		"nil dereference": func() {
			var p *int
			_ = *p
		},
	}

	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			read := func(string) (fs.Content, error) {
				return panicContent{fn: fn}, nil
			}
			sc := scan.New(testTable(), scan.Options{ReadFile: read})

			require.Panics(t, func() { sc.ClassifyFile("a/file") })
		})
	}
}

func TestScanner_ClassifyFile_TruncatedMapping(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("relies on SIGBUS when touching mapped pages past end of file")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "shrinking.zip")
	writeFiles(t, dir, map[string]string{"shrinking.zip": strings.Repeat("PK", 64*1024)})

	reader := fs.NewReader(1024)
	read := func(path string) (fs.Content, error) {
		content, err := reader.ReadFile(path)
		if err != nil {
			return nil, err
		}
		// mapping stays in place while the file shrinks under it
		if err := os.Truncate(path, 0); err != nil {
			content.Close()
			return nil, err
		}
		return content, nil
	}

	sc := scan.New(testTable(), scan.Options{ReadFile: read})

	r := sc.ClassifyFile(path)
	require.Error(t, r.Err)
	require.Contains(t, r.Err.Error(), "fault while reading")
	require.Equal(t, scan.NotFound, r.Outcome())
	require.Equal(t, "shrinking.zip", r.Name)
}

func TestFormatDurationHMS(t *testing.T) {
	require.Equal(t, "0.50s", scan.FormatDurationHMS(500*time.Millisecond))
	require.Equal(t, "00:00:01", scan.FormatDurationHMS(time.Second))
	require.Equal(t, "01:02:03", scan.FormatDurationHMS(time.Hour+2*time.Minute+3*time.Second))
	require.Equal(t, "not_found", scan.NotFound.String())
}
