package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/recordsql/recordsql/internal/config"
	"github.com/recordsql/recordsql/internal/query/sqldb"
	"github.com/recordsql/recordsql/internal/sport"
	"github.com/recordsql/recordsql/internal/storage"
	"github.com/recordsql/recordsql/internal/storage/local"
	"github.com/recordsql/recordsql/internal/storage/s3"
	"github.com/recordsql/recordsql/internal/vectorindex"
	"github.com/recordsql/recordsql/internal/vectorindex/pgvector"
)

// Resources are the per-sport collaborators the pipeline needs.
type Resources struct {
	Adapter     sport.Adapter
	PlayerIndex vectorindex.Index
	TeamIndex   vectorindex.Index
	closers     []io.Closer
}

func (r *Resources) Close() error {
	var errs []error
	if r.Adapter != nil {
		errs = append(errs, r.Adapter.Close())
	}
	for _, closer := range r.closers {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// OpenAdapter opens the store of one sport and builds its adapter.
func OpenAdapter(ctx context.Context, cfg config.Config, name string) (sport.Adapter, error) {
	if !sport.IsSupported(name) {
		return nil, fmt.Errorf("%w: %q", sport.ErrUnsupportedSport, name)
	}
	db, err := sqldb.Open(ctx, sqldb.DBConfig{
		Driver:          cfg.Store.Driver,
		DSN:             cfg.Store.StoreDSN(name),
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	adapter, err := sport.New(name, sport.Deps{
		Executor: sqldb.NewEngine(db, cfg.Pipeline.MaxRows),
		Closer:   db,
		TopN:     cfg.Pipeline.TopN,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return adapter, nil
}

// OpenResources builds the adapter and both vector indices of one sport.
func OpenResources(ctx context.Context, cfg config.Config, name string) (*Resources, error) {
	adapter, err := OpenAdapter(ctx, cfg, name)
	if err != nil {
		return nil, err
	}
	res := &Resources{Adapter: adapter}

	switch cfg.Vector.Backend {
	case "pgvector":
		db, err := pgvector.Open(ctx, cfg.Vector.PGDSN)
		if err != nil {
			_ = res.Close()
			return nil, err
		}
		res.closers = append(res.closers, db)
		if res.PlayerIndex, err = pgvectorIndex(db, cfg, name, vectorindex.KindPlayer); err != nil {
			_ = res.Close()
			return nil, err
		}
		if res.TeamIndex, err = pgvectorIndex(db, cfg, name, vectorindex.KindTeam); err != nil {
			_ = res.Close()
			return nil, err
		}
	default:
		store, err := artifactStore(ctx, cfg)
		if err != nil {
			_ = res.Close()
			return nil, err
		}
		if res.PlayerIndex, err = vectorindex.Load(ctx, store, name, vectorindex.KindPlayer); err != nil {
			_ = res.Close()
			return nil, err
		}
		if res.TeamIndex, err = vectorindex.Load(ctx, store, name, vectorindex.KindTeam); err != nil {
			_ = res.Close()
			return nil, err
		}
	}
	return res, nil
}

func pgvectorIndex(db *sql.DB, cfg config.Config, name string, kind vectorindex.EntityKind) (*pgvector.Index, error) {
	return pgvector.New(db, cfg.Vector.PGTable, name, kind)
}

// artifactStore returns where vector artifacts are read from.
func artifactStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	if cfg.Vector.Backend == "s3" {
		return objectStore(ctx, cfg)
	}
	return local.New(cfg.Vector.Dir)
}

func objectStore(ctx context.Context, cfg config.Config) (*s3.Store, error) {
	return s3.New(ctx, s3.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
}
