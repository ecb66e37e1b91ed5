// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package scan classifies the entries of a directory against a pattern
// table using a bounded pool of workers.
package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/ostafen/sigscan/internal/fs"
	"github.com/ostafen/sigscan/internal/pattern"
	"github.com/rs/zerolog"
)

var (
	ErrNotDirectory = errors.New("not a directory")
	ErrTimedOut     = errors.New("process timed out before termination")
	ErrInterrupted  = errors.New("interrupted while awaiting termination")
)

const (
	DefaultWorkers = 10
	DefaultTimeout = 30 * time.Second
)

type Options struct {
	// Workers is the size of the worker pool. Defaults to DefaultWorkers.
	Workers int
	// QueueSize bounds the number of files waiting for a worker.
	// Defaults to twice the number of workers.
	QueueSize int
	// Timeout bounds the wait for all files to complete.
	// Values <= 0 wait without a deadline.
	Timeout time.Duration
	// ReadFile reads file contents. Defaults to an fs.Reader using
	// fs.DefaultMmapThreshold.
	ReadFile fs.ReadFunc
	Logger   *zerolog.Logger
}

type Scanner struct {
	table  pattern.Table
	opts   Options
	logger zerolog.Logger
}

func New(table pattern.Table, opts Options) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 2 * opts.Workers
	}
	if opts.ReadFile == nil {
		opts.ReadFile = fs.NewReader(fs.DefaultMmapThreshold).ReadFile
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Scanner{
		table:  table,
		opts:   opts,
		logger: logger,
	}
}

// ListDir returns the paths of the entries found directly inside dir.
// Subdirectories are listed like any other entry.
func ListDir(dir string) ([]string, error) {
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = filepath.Join(dir, e.Name())
	}
	return paths, nil
}

// Scan lists dir and classifies each of its entries. See ScanFiles.
func (s *Scanner) Scan(ctx context.Context, dir string, fn func(Result)) (Stats, error) {
	paths, err := ListDir(dir)
	if err != nil {
		return Stats{}, err
	}
	return s.ScanFiles(ctx, paths, fn)
}

// ScanFiles classifies paths concurrently and calls fn once per delivered
// result. fn is always called from the calling goroutine, never
// concurrently, and results arrive in no particular order.
//
// If the deadline expires first, ScanFiles returns ErrTimedOut. If ctx is
// cancelled, it returns an error wrapping ErrInterrupted. In both cases no
// further files are submitted or picked up by the workers once ScanFiles
// returns. Reads already in progress are not cancelled, but their results are
// no longer delivered. The returned Stats hold the real counts.
func (s *Scanner) ScanFiles(ctx context.Context, paths []string, fn func(Result)) (Stats, error) {
	start := time.Now()
	stats := Stats{Total: len(paths)}

	if len(paths) == 0 {
		return stats, nil
	}

	tasks := make(chan string, s.opts.QueueSize)
	// results outlive the collector on timeout, so workers must never block
	results := make(chan Result, len(paths))

	// closed on return, so that the feeder and the workers stop
	done := make(chan struct{})
	defer close(done)

	workers := min(s.opts.Workers, len(paths))
	for i := 0; i < workers; i++ {
		go s.worker(tasks, results, done)
	}

	var submitted atomic.Int64
	go func() {
		defer close(tasks)

		for _, path := range paths {
			select {
			case tasks <- path:
				submitted.Add(1)
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	s.logger.Debug().
		Int("files", len(paths)).
		Int("workers", workers).
		Int("rules", len(s.table)).
		Dur("timeout", s.opts.Timeout).
		Msg("scan started")

	var deadline <-chan time.Time
	if s.opts.Timeout > 0 {
		timer := time.NewTimer(s.opts.Timeout)
		defer timer.Stop()

		deadline = timer.C
	}

	var err error
	for err == nil && stats.Completed < stats.Total {
		select {
		case r := <-results:
			stats.add(r)
			if fn != nil {
				fn(r)
			}
		case <-deadline:
			err = ErrTimedOut
		case <-ctx.Done():
			err = fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
		}
	}

	stats.Submitted = int(submitted.Load())
	stats.Elapsed = time.Since(start)

	if err != nil {
		s.logger.Warn().
			Err(err).
			Int("completed", stats.Completed).
			Int("submitted", stats.Submitted).
			Int("pending", stats.Pending()).
			Msg("scan finished before all files completed")
	}
	return stats, err
}

func (s *Scanner) worker(tasks <-chan string, results chan<- Result, done <-chan struct{}) {
	for path := range tasks {
		select {
		case <-done:
			return
		default:
		}
		results <- s.ClassifyFile(path)
	}
}

// ClassifyFile reads the file at path and selects the matching rule with
// the highest priority. A file that cannot be read yields a NotFound result.
func (s *Scanner) ClassifyFile(path string) (res Result) {
	res = Result{
		Name: filepath.Base(path),
		Path: path,
	}

	content, err := s.opts.ReadFile(path)
	if err != nil {
		s.logger.Debug().Str("path", path).Err(err).Msg("unable to read file")

		res.Err = err
		return res
	}
	defer content.Close()

	// a mapped file truncated while being scanned faults instead of
	// returning an error
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if !isMemoryFault(r) {
			panic(r)
		}

		s.logger.Warn().Str("path", path).Interface("fault", r).Msg("fault while reading file")

		res = Result{
			Name: res.Name,
			Path: res.Path,
			Err:  fmt.Errorf("fault while reading %s: %v", path, r),
		}
	}()

	buf := content.Bytes()
	res.Size = len(buf)
	res.Rule, res.Matched = s.table.Classify(buf)
	return res
}

// isMemoryFault reports whether r is the value of a panic raised by a memory
// fault while SetPanicOnFault is enabled. Such values carry the faulting
// address, while nil dereferences and other panics do not.
func isMemoryFault(r any) bool {
	err, ok := r.(runtime.Error)
	if !ok {
		return false
	}
	_, ok = err.(interface{ Addr() uintptr })
	return ok
}
