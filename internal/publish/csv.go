// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package publish

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

var (
	ecgHeader = []string{"Time [ns]", "Lead 1 [uV]"}
	accHeader = []string{"Time [ns]", "X Axis [mG]", "Y Axis [mG]", "Z Axis [mG]"}
)

// CSV is a Sink that writes ECG and accelerometer samples to CSV files,
// one per kind. Other records are ignored.
type CSV struct {
	create func(name string) (io.WriteCloser, error)

	mu    sync.Mutex
	files map[string]*csvFile
}

type csvFile struct {
	w *csv.Writer
	c io.Closer
}

// NewCSV returns a CSV sink that obtains the file for each kind from
// create, which is called with the record kind when the first record
// of the kind is written.
func NewCSV(create func(kind string) (io.WriteCloser, error)) *CSV {
	return &CSV{create: create, files: make(map[string]*csvFile)}
}

// NewCSVDir returns a CSV sink that writes to <kind>.csv files in dir.
func NewCSVDir(dir string) *CSV {
	return NewCSV(func(kind string) (io.WriteCloser, error) {
		return os.Create(filepath.Join(dir, kind+".csv"))
	})
}

func (s *CSV) Publish(_ context.Context, r Record) error {
	var (
		header []string
		rows   [][]string
	)
	switch r.Kind {
	case "ecg":
		if len(r.Lead1) != len(r.Time) {
			return fmt.Errorf("mismatched ecg record lengths: %d != %d", len(r.Lead1), len(r.Time))
		}
		header = ecgHeader
		rows = make([][]string, len(r.Time))
		for i, t := range r.Time {
			rows[i] = []string{itoa(t), itoa(r.Lead1[i])}
		}
	case "acc":
		if len(r.X) != len(r.Time) || len(r.Y) != len(r.Time) || len(r.Z) != len(r.Time) {
			return fmt.Errorf("mismatched acc record lengths: %d/%d/%d != %d", len(r.X), len(r.Y), len(r.Z), len(r.Time))
		}
		header = accHeader
		rows = make([][]string, len(r.Time))
		for i, t := range r.Time {
			rows[i] = []string{itoa(t), itoa(r.X[i]), itoa(r.Y[i]), itoa(r.Z[i])}
		}
	default:
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[r.Kind]
	if !ok {
		wc, err := s.create(r.Kind)
		if err != nil {
			return fmt.Errorf("failed to create %s csv file: %w", r.Kind, err)
		}
		f = &csvFile{w: csv.NewWriter(wc), c: wc}
		s.files[r.Kind] = f
		rows = append([][]string{header}, rows...)
	}
	err := f.w.WriteAll(rows)
	if err != nil {
		return fmt.Errorf("failed to write %s csv records: %w", r.Kind, err)
	}
	return nil
}

func itoa[T int32 | int64](v T) string { return strconv.FormatInt(int64(v), 10) }

func (s *CSV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for kind, f := range s.files {
		f.w.Flush()
		errs = append(errs, f.w.Error(), f.c.Close())
		delete(s.files, kind)
	}
	return errors.Join(errs...)
}
