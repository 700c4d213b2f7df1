// Package history keeps a journal of patch runs in a SQL database.
package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dcrodman/binpatch/internal/core"
	"github.com/dcrodman/binpatch/internal/patch"
)

// Run is one invocation of the engine against a target file.
type Run struct {
	ID         uint64 `gorm:"primaryKey"`
	Path       string `gorm:"not null; index"`
	BackupPath string
	SetName    string
	Stage      string `gorm:"not null"`
	FailedAt   string
	Error      string
	Applied    int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
	Entries    []RunEntry
}

// RunEntry is the outcome of a single patch within a Run.
type RunEntry struct {
	ID          uint64 `gorm:"primaryKey"`
	RunID       uint64 `gorm:"not null; index"`
	Position    int
	Offset      int64
	Length      int
	Description string
	Error       string
}

// Open connects to the database configured under history and migrates the schema.
func Open(cfg *core.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.History.Engine) {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.QualifiedPath(cfg.History.Filename))
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseURL())
	default:
		return nil, fmt.Errorf("unsupported database engine: %s", cfg.History.Engine)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Run{}, &RunEntry{}); err != nil {
		return fmt.Errorf("error auto migrating db: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	database, err := db.DB()
	if err != nil {
		return fmt.Errorf("error while getting current connection: %w", err)
	}
	if err := database.Close(); err != nil {
		return fmt.Errorf("error while closing database connection: %w", err)
	}
	return nil
}

// Record persists report along with the error Apply returned, if any.
func Record(db *gorm.DB, report *patch.Report, runErr error) (*Run, error) {
	run := &Run{
		Path:       report.Path,
		BackupPath: report.BackupPath,
		SetName:    report.SetName,
		Stage:      report.Stage.String(),
		Applied:    len(report.Applied()),
		Failed:     len(report.Failed()),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if report.Stage == patch.Failed {
		run.FailedAt = report.FailedAt.String()
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	for _, res := range report.Entries {
		entry := RunEntry{
			Position:    res.Index,
			Offset:      res.Entry.Offset,
			Length:      len(res.Entry.Data),
			Description: res.Entry.Description,
		}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}
		run.Entries = append(run.Entries, entry)
	}

	if err := db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("error recording run: %w", err)
	}
	return run, nil
}

// Recent returns up to limit runs, newest first, with their entries.
func Recent(db *gorm.DB, limit int) ([]Run, error) {
	var runs []Run
	err := db.Preload("Entries", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).Order("id desc").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("error loading runs: %w", err)
	}
	return runs, nil
}

// ForPath returns every run recorded against path, oldest first.
func ForPath(db *gorm.DB, path string) ([]Run, error) {
	var runs []Run
	if err := db.Where("path = ?", path).Order("id").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("error loading runs for %s: %w", path, err)
	}
	return runs, nil
}
