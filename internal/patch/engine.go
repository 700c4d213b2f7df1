package patch

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

var ErrNoExpectedSize = errors.New("no expected file size configured")

// Engine validates, backs up and patches a target file.
type Engine struct {
	// Exact size the target must have. Zero uses the size from the Set.
	ExpectedSize int64
	Backups      Backups
	Logger       *zap.SugaredLogger
}

// NewEngine returns an Engine using the default backup suffix.
func NewEngine(expectedSize int64, logger *zap.SugaredLogger) *Engine {
	return &Engine{ExpectedSize: expectedSize, Logger: logger}
}

func (e *Engine) logger() *zap.SugaredLogger {
	if e.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return e.Logger
}

func (e *Engine) expectedSize(set *Set) int64 {
	if e.ExpectedSize != 0 {
		return e.ExpectedSize
	}
	return set.ExpectedSize
}

// Apply backs up path, checks its size and writes every entry of set in order.
//
// A returned error is always a *StageError. Nothing has been written unless its
// Stage is Patching, which means the file could not be flushed. Entry failures
// are not returned; they are recorded in the Report and writing
// continues with the next entry. Callers decide whether a partially applied
// set is acceptable by inspecting Report.Failed.
func (e *Engine) Apply(path string, set *Set) (*Report, error) {
	log := e.logger()
	report := &Report{Path: path, SetName: set.Name, StartedAt: time.Now()}
	fail := func(err error) (*Report, error) {
		report.FailedAt = report.Stage
		report.Stage = Failed
		report.FinishedAt = time.Now()
		log.Errorw("patching aborted", "path", path, "stage", report.FailedAt.String(), "error", err)
		return report, &StageError{Stage: report.FailedAt, Err: err}
	}

	report.Stage = Validating
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fail(fmt.Errorf("%s: %w", path, ErrNotFound))
		}
		return fail(err)
	}
	size := e.expectedSize(set)
	if size <= 0 {
		return fail(ErrNoExpectedSize)
	}

	report.Stage = BackingUp
	backupPath, err := e.Backups.Create(path)
	if err != nil {
		return fail(fmt.Errorf("backup creation failed: %w", err))
	}
	report.BackupPath = backupPath
	log.Infow("backup created", "path", backupPath)

	report.Stage = Validating
	if err := Validate(path, size); err != nil {
		return fail(fmt.Errorf("validation failed: %w", err))
	}
	report.Stage = Validated
	log.Infow("executable validation passed", "path", path, "size", size)

	stream, err := OpenStream(path)
	if err != nil {
		return fail(err)
	}
	defer stream.Close()

	report.Stage = Patching
	report.Entries = make([]EntryResult, 0, set.Len())
	for i, entry := range set.Entries {
		res := EntryResult{Index: i, Entry: entry, Err: entry.Validate()}
		if res.Err == nil {
			res.Err = stream.WriteBytesAt(entry.Offset, entry.Data)
		}
		if res.Err != nil {
			log.Warnw("patch failed", "index", i, "offset", fmt.Sprintf("%#x", entry.Offset), "error", res.Err)
		} else {
			log.Debugw("patch applied", "index", i, "offset", fmt.Sprintf("%#x", entry.Offset),
				"bytes", len(entry.Data), "description", entry.Description)
		}
		report.Entries = append(report.Entries, res)
	}

	if err := stream.Close(); err != nil {
		return fail(err)
	}
	report.Stage = Done
	report.FinishedAt = time.Now()

	if failed := report.Failed(); len(failed) > 0 {
		log.Warnw("patching finished with failures", "path", path,
			"applied", len(report.Entries)-len(failed), "failed", len(failed))
	} else {
		log.Infow("patching completed successfully", "path", path, "applied", len(report.Entries))
	}
	return report, nil
}

// Preview is the current content of the bytes an entry would overwrite.
type Preview struct {
	Index   int
	Entry   Entry
	Current []byte
	Err     error
}

// Patched reports whether the target already holds the entry's data.
func (p Preview) Patched() bool {
	return p.Err == nil && string(p.Current) == string(p.Entry.Data)
}

// Preview validates path and reads the bytes each entry of set would replace.
// The target is opened read-only and no backup is made.
func (e *Engine) Preview(path string, set *Set) ([]Preview, error) {
	size := e.expectedSize(set)
	if size <= 0 {
		return nil, ErrNoExpectedSize
	}
	if err := Validate(path, size); err != nil {
		return nil, err
	}

	stream, err := openStream(path, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	previews := make([]Preview, 0, set.Len())
	for i, entry := range set.Entries {
		p := Preview{Index: i, Entry: entry, Err: entry.Validate()}
		if p.Err == nil {
			p.Current, p.Err = stream.ReadAt(entry.Offset, len(entry.Data))
		}
		previews = append(previews, p)
	}
	return previews, nil
}

// Restore puts the backup of path back in place.
func (e *Engine) Restore(path string) error {
	if err := e.Backups.Restore(path); err != nil {
		e.logger().Errorw("failed to restore backup", "path", path, "error", err)
		return err
	}
	e.logger().Infow("backup restored", "path", path)
	return nil
}

// Verify runs the validation gate alone, without backing up or writing.
func (e *Engine) Verify(path string, set *Set) error {
	size := e.expectedSize(set)
	if size <= 0 {
		return ErrNoExpectedSize
	}
	if err := Validate(path, size); err != nil {
		e.logger().Errorw("validation failed", "path", path, "error", err)
		return err
	}
	e.logger().Infow("executable validation passed", "path", path, "size", size)
	return nil
}
