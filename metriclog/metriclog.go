// Package metriclog stores the metric history of a training run: append-only
// per-split logs of (iteration, FID) records and the single best-value marker.
//
// The on-disk format is two text lines per record:
//
//	iter: 12500
//	frechet_inception_distance: 34.217
//
// kept in `train_log.txt` and `val_log.txt` under the experiment directory,
// with the current best validation record in `smallest_val_fid.txt`.
// Single-writer: the training loop never appends concurrently with itself.
package metriclog

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gomlx/img2img/support/fsutil"
)

// File names within the experiment directory.
const (
	TrainLogFile   = "train_log.txt"
	ValLogFile     = "val_log.txt"
	BestValFIDFile = "smallest_val_fid.txt"
)

const (
	iterPrefix = "iter: "
	fidPrefix  = "frechet_inception_distance: "
)

// Record is one (iteration, FID) measurement.
type Record struct {
	Iteration int
	FID       float64
}

func (r Record) String() string {
	return fmt.Sprintf("(iter=%d, fid=%s)", r.Iteration, formatFID(r.FID))
}

func formatFID(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (r Record) encode() []byte {
	return []byte(iterPrefix + strconv.Itoa(r.Iteration) + "\n" + fidPrefix + formatFID(r.FID) + "\n")
}

// Log is an append-only metric log bound to a file. The file is created on
// the first Append.
type Log struct {
	path string
}

// NewLog returns a Log writing to the given file path.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Path of the underlying file.
func (l *Log) Path() string { return l.path }

// Append adds a record at the end of the log. Records are never deduplicated:
// repeated iterations append repeated entries.
func (l *Log) Append(record Record) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
	if err != nil {
		return errors.Wrapf(err, "failed to open metric log %q for append", l.path)
	}
	if _, err = f.Write(record.encode()); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to append %s to metric log %q", record, l.path)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close metric log %q", l.path)
	}
	return nil
}

// Records reads back all records in append order. A missing file reads as an
// empty log.
func (l *Log) Records() ([]Record, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to open metric log %q", l.path)
	}
	defer func() { _ = f.Close() }()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		record, err := parseRecord(scanner, l.path, scanner.Text())
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed reading metric log %q", l.path)
	}
	return records, nil
}

func parseRecord(scanner *bufio.Scanner, path, iterLine string) (Record, error) {
	var record Record
	if !strings.HasPrefix(iterLine, iterPrefix) {
		return record, errors.Errorf("malformed metric log %q: expected %q line, got %q", path, iterPrefix, iterLine)
	}
	iteration, err := strconv.Atoi(strings.TrimSpace(iterLine[len(iterPrefix):]))
	if err != nil {
		return record, errors.Wrapf(err, "malformed iteration in metric log %q: %q", path, iterLine)
	}
	if !scanner.Scan() {
		return record, errors.Errorf("truncated record in metric log %q: %q has no metric line", path, iterLine)
	}
	fidLine := scanner.Text()
	if !strings.HasPrefix(fidLine, fidPrefix) {
		return record, errors.Errorf("malformed metric log %q: expected %q line, got %q", path, fidPrefix, fidLine)
	}
	fidValue, err := strconv.ParseFloat(strings.TrimSpace(fidLine[len(fidPrefix):]), 64)
	if err != nil {
		return record, errors.Wrapf(err, "malformed metric value in metric log %q: %q", path, fidLine)
	}
	record.Iteration = iteration
	record.FID = fidValue
	return record, nil
}

// BestMarker is the single mutable record tracking the best (smallest)
// validation FID seen so far, paired with the model checkpoint saved under
// the same tag.
type BestMarker struct {
	path string
}

// NewBestMarker returns a BestMarker stored at the given file path.
func NewBestMarker(path string) *BestMarker {
	return &BestMarker{path: path}
}

// Path of the underlying file.
func (m *BestMarker) Path() string { return m.path }

// Read returns the current best record, or found=false if no marker was
// written yet.
func (m *BestMarker) Read() (record Record, found bool, err error) {
	log := NewLog(m.path)
	records, err := log.Records()
	if err != nil {
		return record, false, err
	}
	if len(records) == 0 {
		return record, false, nil
	}
	// The marker holds exactly one record; tolerate extras from old runs and
	// take the last.
	return records[len(records)-1], true, nil
}

// Replace overwrites the marker with the new best record. The replacement is
// atomic: the marker file is never observed missing or half-written, even if
// the process dies mid-update.
func (m *BestMarker) Replace(record Record) error {
	if err := fsutil.AtomicWriteFile(m.path, record.encode(), 0664); err != nil {
		return errors.WithMessagef(err, "replacing best-FID marker with %s", record)
	}
	return nil
}
