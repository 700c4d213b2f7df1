package patch

import (
	"errors"
	"fmt"
	"time"
)

// Stage is the point an Apply run has reached.
type Stage int

const (
	NotStarted Stage = iota
	Validating
	BackingUp
	Validated
	Patching
	Done
	Failed
)

var stageNames = map[Stage]string{
	NotStarted: "not started",
	Validating: "validating",
	BackingUp:  "backing up",
	Validated:  "validated",
	Patching:   "patching",
	Done:       "done",
	Failed:     "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageError is a failure that aborted a run before any patch was written.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// EntryResult is the outcome of writing a single entry.
type EntryResult struct {
	Index int
	Entry Entry
	Err   error
}

// Report describes an Apply run. Entry failures do not abort a run, so a Report
// with Stage Done may still contain failed entries.
type Report struct {
	Path       string
	BackupPath string
	SetName    string
	Stage      Stage
	// Stage at which a failed run stopped.
	FailedAt   Stage
	Entries    []EntryResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Applied returns the entries that were written without error.
func (r *Report) Applied() []EntryResult {
	var applied []EntryResult
	for _, res := range r.Entries {
		if res.Err == nil {
			applied = append(applied, res)
		}
	}
	return applied
}

// Failed returns the entries that could not be written.
func (r *Report) Failed() []EntryResult {
	var failed []EntryResult
	for _, res := range r.Entries {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Complete reports whether the run reached Done with every entry written.
func (r *Report) Complete() bool {
	return r.Stage == Done && len(r.Failed()) == 0
}

// Err joins the errors of every failed entry, or returns nil if all succeeded.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, fmt.Errorf("patch %d at %#x: %w", res.Index, res.Entry.Offset, res.Err))
	}
	return errors.Join(errs...)
}
