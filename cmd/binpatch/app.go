package main

import (
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/dcrodman/binpatch/internal/core"
	"github.com/dcrodman/binpatch/internal/history"
	"github.com/dcrodman/binpatch/internal/patch"
)

func (opts *options) setUp(command string) error {
	cfg, err := core.LoadConfig(opts.ConfigFlag)
	if err != nil {
		return err
	}
	logger, err := core.NewLogger(cfg, command)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}
	opts.cfg = cfg
	opts.logger = logger
	return nil
}

// loadSet returns the table named by --table, then patch_table, then the builtin.
func (opts *options) loadSet() (*patch.Set, error) {
	switch {
	case opts.TableFlag != "":
		return patch.LoadTable(opts.TableFlag)
	case opts.cfg.PatchTable != "":
		return patch.LoadTable(opts.cfg.QualifiedPath(opts.cfg.PatchTable))
	default:
		return patch.Builtin(), nil
	}
}

func (opts *options) newEngine() (*patch.Engine, error) {
	size := opts.cfg.ExpectedSize
	if opts.ExpectedSizeFlag != "" {
		v, err := strconv.ParseInt(opts.ExpectedSizeFlag, 0, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid --expected-size %q", opts.ExpectedSizeFlag)
		}
		size = v
	}
	return &patch.Engine{
		ExpectedSize: size,
		Backups:      patch.Backups{Suffix: opts.cfg.BackupSuffix},
		Logger:       opts.logger,
	}, nil
}

// recordRun writes the run to the history database when it is enabled. Journal
// failures are logged and otherwise ignored.
func (opts *options) recordRun(report *patch.Report, runErr error) {
	if !opts.cfg.History.Enabled || report == nil {
		return
	}
	db, err := history.Open(opts.cfg)
	if err != nil {
		opts.logger.Warnw("unable to open history database", "error", err)
		return
	}
	defer opts.closeHistory(db)

	run, err := history.Record(db, report, runErr)
	if err != nil {
		opts.logger.Warnw("unable to record run", "error", err)
		return
	}
	opts.logger.Debugw("run recorded", "id", run.ID)
}

var errHistoryDisabled = errors.New("history is disabled; set history.enabled in config.yaml")

// openHistory connects to the journal for reading. It refuses to create a
// database when history is turned off.
func (opts *options) openHistory() (*gorm.DB, error) {
	if !opts.cfg.History.Enabled {
		return nil, errHistoryDisabled
	}
	return history.Open(opts.cfg)
}

func (opts *options) closeHistory(db *gorm.DB) {
	if err := history.Close(db); err != nil {
		opts.logger.Warnw("unable to close history database", "error", err)
	}
}
