package patch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testSize = 0x340000

func newTestSet(entries ...Entry) *Set {
	set := &Set{Name: "test"}
	set.Add(entries...)
	return set
}

func TestEngine_ApplySingleByte(t *testing.T) {
	path, original := writeTarget(t, testSize)
	engine := NewEngine(testSize, nil)

	report, err := engine.Apply(path, newTestSet(NewEntry(0x2A7, 0xC0)))
	if err != nil {
		t.Fatalf("Apply() error: %s", err)
	}
	if !report.Complete() {
		t.Errorf("Complete() want = true, got stage %s with failures %v", report.Stage, report.Err())
	}

	want := append([]byte(nil), original...)
	want[0x2A7] = 0xC0
	if diff := cmp.Diff(want, readFile(t, path)); diff != "" {
		t.Errorf("patched file differs; diff:\n%s", diff)
	}
	if diff := cmp.Diff(original, readFile(t, report.BackupPath)); diff != "" {
		t.Errorf("backup differs from original; diff:\n%s", diff)
	}
}

func TestEngine_ApplyRepeatedBytes(t *testing.T) {
	path, original := writeTarget(t, testSize)
	engine := NewEngine(testSize, nil)

	if _, err := engine.Apply(path, newTestSet(Fill(0x2E1C67, 0x90, 11))); err != nil {
		t.Fatalf("Apply() error: %s", err)
	}

	got := readFile(t, path)
	for i := int64(0x2E1C67); i < 0x2E1C67+11; i++ {
		if got[i] != 0x90 {
			t.Errorf("byte %#x want = 0x90, got = %#x", i, got[i])
		}
	}
	if got[0x2E1C66] != original[0x2E1C66] || got[0x2E1C67+11] != original[0x2E1C67+11] {
		t.Errorf("Apply() wrote outside the patched range")
	}
}

func TestEngine_ApplyOverlapLaterWins(t *testing.T) {
	path, original := writeTarget(t, 0x100)
	engine := NewEngine(0x100, nil)

	set := newTestSet(
		Fill(0x10, 0xAA, 8),
		NewEntry(0x14, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB),
	)
	if _, err := engine.Apply(path, set); err != nil {
		t.Fatalf("Apply() error: %s", err)
	}

	want := append([]byte(nil), original...)
	copy(want[0x10:], []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB})
	if diff := cmp.Diff(want, readFile(t, path)); diff != "" {
		t.Errorf("overlapping entries applied out of order; diff:\n%s", diff)
	}
}

func TestEngine_ApplyWrongSize(t *testing.T) {
	for _, size := range []int{0xFF, 0x101} {
		path, original := writeTarget(t, size)
		engine := NewEngine(0x100, nil)

		report, err := engine.Apply(path, newTestSet(NewEntry(0, 0xC0)))
		if !errors.Is(err, ErrSizeMismatch) {
			t.Errorf("Apply() want = %v, got = %v", ErrSizeMismatch, err)
		}
		var stageErr *StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != Validating {
			t.Errorf("Apply() want StageError at %s, got = %v", Validating, err)
		}
		if report.Stage != Failed || report.FailedAt != Validating {
			t.Errorf("report want = failed/validating, got = %s/%s", report.Stage, report.FailedAt)
		}
		if len(report.Entries) != 0 {
			t.Errorf("Apply() attempted %d entries after validation failed", len(report.Entries))
		}
		if diff := cmp.Diff(original, readFile(t, path)); diff != "" {
			t.Errorf("Apply() modified a file that failed validation; diff:\n%s", diff)
		}
	}
}

func TestEngine_ApplyMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "WoW.exe")
	engine := NewEngine(0x100, nil)

	report, err := engine.Apply(path, newTestSet(NewEntry(0, 0xC0)))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Apply() want = %v, got = %v", ErrNotFound, err)
	}
	if report.FailedAt != Validating {
		t.Errorf("FailedAt want = %s, got = %s", Validating, report.FailedAt)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Apply() created files for a missing target: %v", entries)
	}
}

func TestEngine_ApplyBackupFailure(t *testing.T) {
	path, original := writeTarget(t, 0x100)
	// A directory in place of the backup makes the final rename fail.
	if err := os.Mkdir(path+".backup", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path+".backup", "keep"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(0x100, nil)

	report, err := engine.Apply(path, newTestSet(NewEntry(0, 0xC0)))
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != BackingUp {
		t.Fatalf("Apply() want StageError at %s, got = %v", BackingUp, err)
	}
	if report.BackupPath != "" {
		t.Errorf("BackupPath want = empty, got = %s", report.BackupPath)
	}
	if diff := cmp.Diff(original, readFile(t, path)); diff != "" {
		t.Errorf("Apply() modified the file after backup failed; diff:\n%s", diff)
	}
}

func TestEngine_ApplyContinuesPastFailedEntries(t *testing.T) {
	path, original := writeTarget(t, 0x100)
	engine := NewEngine(0x100, nil)

	set := newTestSet(
		NewEntry(0x01, 0x11),
		NewEntry(0xFE, 0x22, 0x22, 0x22), // runs past the end of the file
		NewEntry(0x03, 0x33),
	)
	report, err := engine.Apply(path, set)
	if err != nil {
		t.Fatalf("Apply() error: %s", err)
	}
	if report.Stage != Done {
		t.Errorf("Stage want = %s, got = %s", Done, report.Stage)
	}
	if report.Complete() {
		t.Errorf("Complete() want = false with a failed entry")
	}
	if len(report.Applied()) != 2 {
		t.Errorf("Applied() want = 2, got = %d", len(report.Applied()))
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].Index != 1 || !errors.Is(failed[0].Err, ErrOutOfRange) {
		t.Errorf("Failed() want = entry 1 out of range, got = %+v", failed)
	}
	if !errors.Is(report.Err(), ErrOutOfRange) {
		t.Errorf("Err() want = %v, got = %v", ErrOutOfRange, report.Err())
	}

	want := append([]byte(nil), original...)
	want[0x01] = 0x11
	want[0x03] = 0x33
	if diff := cmp.Diff(want, readFile(t, path)); diff != "" {
		t.Errorf("patched file differs; diff:\n%s", diff)
	}
}

func TestEngine_ExpectedSizeFromSet(t *testing.T) {
	path, _ := writeTarget(t, 0x80)
	engine := &Engine{}

	set := newTestSet(NewEntry(0, 0x01))
	if _, err := engine.Apply(path, set); !errors.Is(err, ErrNoExpectedSize) {
		t.Errorf("Apply() want = %v, got = %v", ErrNoExpectedSize, err)
	}

	set.ExpectedSize = 0x80
	if _, err := engine.Apply(path, set); err != nil {
		t.Errorf("Apply() error: %s", err)
	}

	engine.ExpectedSize = 0x81
	if _, err := engine.Apply(path, set); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("Apply() want engine size to take precedence, got = %v", err)
	}
}

func TestEngine_ApplyThenRestore(t *testing.T) {
	path, original := writeTarget(t, 0x100)
	engine := NewEngine(0x100, nil)

	if _, err := engine.Apply(path, newTestSet(Fill(0, 0x90, 0x80))); err != nil {
		t.Fatalf("Apply() error: %s", err)
	}
	if err := engine.Restore(path); err != nil {
		t.Fatalf("Restore() error: %s", err)
	}
	if diff := cmp.Diff(original, readFile(t, path)); diff != "" {
		t.Errorf("restored file differs from original; diff:\n%s", diff)
	}
	if engine.Backups.Exists(path) {
		t.Errorf("Restore() left the backup in place")
	}
}

func TestEngine_Preview(t *testing.T) {
	path, original := writeTarget(t, 0x100)
	engine := NewEngine(0x100, nil)
	set := newTestSet(
		NewEntry(0x10, original[0x10]),
		NewEntry(0x20, 0xFF, 0xFF),
		NewEntry(0xFF, 0x01, 0x02),
	)

	previews, err := engine.Preview(path, set)
	if err != nil {
		t.Fatalf("Preview() error: %s", err)
	}
	if len(previews) != 3 {
		t.Fatalf("Preview() want = 3 results, got = %d", len(previews))
	}
	if !previews[0].Patched() {
		t.Errorf("Patched() want = true for bytes that already match")
	}
	if previews[1].Patched() {
		t.Errorf("Patched() want = false for differing bytes")
	}
	if diff := cmp.Diff(original[0x20:0x22], previews[1].Current); diff != "" {
		t.Errorf("Preview() current bytes differ; diff:\n%s", diff)
	}
	if !errors.Is(previews[2].Err, ErrOutOfRange) {
		t.Errorf("Preview() want = %v, got = %v", ErrOutOfRange, previews[2].Err)
	}
	if engine.Backups.Exists(path) {
		t.Errorf("Preview() created a backup")
	}
	if diff := cmp.Diff(original, readFile(t, path)); diff != "" {
		t.Errorf("Preview() modified the file; diff:\n%s", diff)
	}
}

func TestStage_String(t *testing.T) {
	if Patching.String() != "patching" {
		t.Errorf("String() want = patching, got = %s", Patching)
	}
	if Stage(42).String() != "stage(42)" {
		t.Errorf("String() want = stage(42), got = %s", Stage(42))
	}
}
