package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SignalTrack/internal/domain/models"
	domrepo "SignalTrack/internal/domain/repository"
	pkgch "SignalTrack/pkg/clickhouse"
	applogger "SignalTrack/pkg/logger"
)

const (
	signalsArchiveTable   = "signals_archive"
	snapshotsArchiveTable = "performance_snapshots"
)

// ArchiveSchema is the DDL for the archive tables. Resolved signals are keyed
// by id in a ReplacingMergeTree, so re-archiving the same signal is harmless.
var ArchiveSchema = []string{
	`CREATE TABLE IF NOT EXISTS signals_archive (
        signal_id      String,
        instrument     LowCardinality(String),
        direction      LowCardinality(String),
        state          LowCardinality(String),
        entry_price    Decimal(38, 10),
        target_price   Decimal(38, 10),
        stop_price     Decimal(38, 10),
        resolved_price Nullable(Decimal(38, 10)),
        return         Decimal(38, 10),
        max_favorable  Decimal(38, 10),
        max_adverse    Decimal(38, 10),
        created_at     DateTime64(3, 'UTC'),
        resolved_at    DateTime64(3, 'UTC'),
        archived_at    DateTime64(3, 'UTC')
    ) ENGINE = ReplacingMergeTree(archived_at)
    ORDER BY (instrument, signal_id)`,
	`CREATE TABLE IF NOT EXISTS performance_snapshots (
        seq          UInt64,
        window_start DateTime64(3, 'UTC'),
        window_end   DateTime64(3, 'UTC'),
        computed_at  DateTime64(3, 'UTC'),
        sample_count UInt32,
        wins         UInt32,
        losses       UInt32,
        expired      UInt32,
        cancelled    UInt32,
        hit_rate     Nullable(Float64),
        mean_return  Decimal(38, 10),
        max_drawdown Decimal(38, 10)
    ) ENGINE = MergeTree
    ORDER BY computed_at`,
}

// CHArchive appends resolved signals and snapshots to ClickHouse for reporting.
type CHArchive struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHArchive(ch *pkgch.Client, l *applogger.Logger) *CHArchive {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHArchive{ch: ch, db: ch.DB(), l: l}
}

func (a *CHArchive) Init(ctx context.Context) error {
	return a.ch.InitSchema(ctx, ArchiveSchema)
}

func (a *CHArchive) ArchiveSignals(ctx context.Context, signals []*models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	start := time.Now()
	q := fmt.Sprintf(`INSERT INTO %s (signal_id, instrument, direction, state, entry_price, target_price,
        stop_price, resolved_price, return, max_favorable, max_adverse, created_at, resolved_at, archived_at)`, signalsArchiveTable)

	err := a.batch(ctx, q, func(stmt *sql.Stmt) error {
		now := time.Now().UTC()
		for _, s := range signals {
			if s == nil || s.ResolvedAt == nil {
				continue
			}
			var resolved interface{}
			if s.ResolvedPrice != nil {
				resolved = *s.ResolvedPrice
			}
			if _, err := stmt.ExecContext(ctx,
				s.ID, s.Instrument, string(s.Direction), string(s.State),
				s.EntryPrice, s.TargetPrice, s.StopPrice, resolved, s.Return(),
				s.MaxFavorable, s.MaxAdverse,
				s.CreatedAt.UTC(), s.ResolvedAt.UTC(), now,
			); err != nil {
				return fmt.Errorf("append signal %s: %w", s.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		a.l.Error("clickhouse archive signals failed", applogger.Int("rows", len(signals)), applogger.Error(err))
		return err
	}
	a.l.Debug("clickhouse archived signals", applogger.Int("rows", len(signals)), applogger.Duration("took", time.Since(start)))
	return nil
}

func (a *CHArchive) ArchiveSnapshot(ctx context.Context, s *models.PerformanceSnapshot) error {
	if s == nil {
		return nil
	}
	q := fmt.Sprintf(`INSERT INTO %s (seq, window_start, window_end, computed_at, sample_count, wins, losses,
        expired, cancelled, hit_rate, mean_return, max_drawdown)`, snapshotsArchiveTable)

	return a.batch(ctx, q, func(stmt *sql.Stmt) error {
		var hit interface{}
		if s.HitRate != nil {
			hit = *s.HitRate
		}
		_, err := stmt.ExecContext(ctx,
			s.Seq, s.WindowStart.UTC(), s.WindowEnd.UTC(), s.ComputedAt.UTC(),
			uint32(s.SampleCount), uint32(s.Wins), uint32(s.Losses), uint32(s.Expired), uint32(s.Cancelled),
			hit, s.MeanReturn, s.MaxDrawdown,
		)
		return err
	})
}

// batch runs one clickhouse-go block insert: rows appended through the prepared
// statement are sent together on commit.
func (a *CHArchive) batch(ctx context.Context, q string, fill func(*sql.Stmt) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	if err := fill(stmt); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (a *CHArchive) Health(ctx context.Context) error {
	return a.ch.Health(ctx)
}

func (a *CHArchive) Close() error {
	return a.ch.Close()
}

var _ domrepo.Archive = (*CHArchive)(nil)
