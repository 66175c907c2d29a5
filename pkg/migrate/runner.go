package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/corpalert/corpalert-backend/pkg/logger"
)

// Commands accepted by Runner.Exec.
const (
	CmdUp      = "up"
	CmdDown    = "down"
	CmdRedo    = "redo"
	CmdReset   = "reset"
	CmdStatus  = "status"
	CmdVersion = "version"
)

var ErrUnknownCommand = errors.New("unknown migrate command")

// Runner applies goose migrations from an fs.FS against postgres.
type Runner struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func NewRunner(db *sql.DB, source fs.FS, logg *logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, source)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider, logg: logg}, nil
}

// Exec runs one command. version needs a YYYYMMDDHHMMSS target.
func (r *Runner) Exec(ctx context.Context, command, target string) error {
	switch command {
	case CmdUp:
		results, err := r.provider.Up(ctx)
		r.logResults(ctx, results)
		return wrap(command, err)
	case CmdDown:
		result, err := r.provider.Down(ctx)
		r.logResults(ctx, []*goose.MigrationResult{result})
		return wrap(command, err)
	case CmdRedo:
		down, err := r.provider.Down(ctx)
		r.logResults(ctx, []*goose.MigrationResult{down})
		if err != nil {
			return wrap(command, err)
		}
		up, err := r.provider.UpByOne(ctx)
		r.logResults(ctx, []*goose.MigrationResult{up})
		return wrap(command, err)
	case CmdReset:
		results, err := r.provider.DownTo(ctx, 0)
		r.logResults(ctx, results)
		return wrap(command, err)
	case CmdStatus:
		return r.status(ctx)
	case CmdVersion:
		return r.migrateTo(ctx, target)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
}

func (r *Runner) migrateTo(ctx context.Context, target string) error {
	version, err := ParseVersion(target)
	if err != nil {
		return err
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read db version: %w", err)
	}
	var results []*goose.MigrationResult
	switch {
	case current < version:
		results, err = r.provider.UpTo(ctx, version)
	case current > version:
		results, err = r.provider.DownTo(ctx, version)
	}
	r.logResults(ctx, results)
	return wrap(CmdVersion, err)
}

func (r *Runner) status(ctx context.Context) error {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return wrap(CmdStatus, err)
	}
	for _, st := range statuses {
		fields := map[string]any{"version": st.Source.Version, "state": string(st.State)}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), st.Source.Path)
	}
	return nil
}

func (r *Runner) logResults(ctx context.Context, results []*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		entry := r.logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		})
		if res.Error != nil {
			r.logg.Error(entry, "migration failed", res.Error)
			continue
		}
		r.logg.Info(entry, "migration applied")
	}
}

// ParseVersion reads a migration version such as 20250601090200.
func ParseVersion(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.New("target version is required")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", raw)
	}
	return v, nil
}

func wrap(command string, err error) error {
	if err == nil || errors.Is(err, goose.ErrNoNextVersion) {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
