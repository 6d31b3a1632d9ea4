package metastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/danthegoodman1/parquetlayout/crdb"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/goccy/go-json"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

const (
	upsertFileSQL = `UPSERT INTO layout_files (namespace, name, source, row_count, partitions, bytes, key_column, key_min, key_max, run_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	listFilesSQL = `SELECT name, source, row_count, partitions, bytes, key_column, key_min, key_max, run_id, created_at
FROM layout_files
WHERE namespace = $1
ORDER BY name`

	// postgres undefined_table
	codeUndefinedTable = "42P01"
)

var ErrCatalogNotMigrated = utils.PermError("layout catalog table missing, run migrations")

type (
	// CRDBMetaStore keeps entries in the layout_files table, one namespace per
	// output location. Writes are immediate.
	CRDBMetaStore struct {
		pool      *pgxpool.Pool
		namespace string
	}
)

func NewCRDBMetaStore(pool *pgxpool.Pool, namespace string) *CRDBMetaStore {
	return &CRDBMetaStore{pool: pool, namespace: namespace}
}

func (cms *CRDBMetaStore) Location() string {
	return "layout_files/" + cms.namespace
}

func (cms *CRDBMetaStore) RecordFile(ctx context.Context, entry FileEntry) error {
	keyMin, err := toJSONB(entry.KeyMin)
	if err != nil {
		return err
	}
	keyMax, err := toJSONB(entry.KeyMax)
	if err != nil {
		return err
	}

	err = utils.ReliableExec(ctx, crdb.StandardContextTimeout, func(ctx context.Context) error {
		return classify(crdbpgx.ExecuteTx(ctx, cms.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, upsertFileSQL,
				cms.namespace, entry.Name, entry.Source, entry.Rows, entry.Partitions, entry.Bytes,
				entry.KeyColumn, keyMin, keyMax, entry.RunID, entry.CreatedAt)
			return err
		}))
	})
	if err != nil {
		return fmt.Errorf("error upserting %s: %w", entry.Name, err)
	}
	zerolog.Ctx(ctx).Debug().Str("namespace", cms.namespace).Str("name", entry.Name).Msg("recorded file")
	return nil
}

func (cms *CRDBMetaStore) ListFiles(ctx context.Context) ([]FileEntry, error) {
	var files []FileEntry
	err := utils.ReliableExec(ctx, crdb.StandardContextTimeout, func(ctx context.Context) error {
		files = files[:0]
		rows, err := cms.pool.Query(ctx, listFilesSQL, cms.namespace)
		if err != nil {
			return classify(err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				e              FileEntry
				keyMin, keyMax pgtype.JSONB
			)
			if err := rows.Scan(&e.Name, &e.Source, &e.Rows, &e.Partitions, &e.Bytes, &e.KeyColumn, &keyMin, &keyMax, &e.RunID, &e.CreatedAt); err != nil {
				return fmt.Errorf("error in rows.Scan: %w", err)
			}
			if e.KeyMin, err = fromJSONB(keyMin); err != nil {
				return err
			}
			if e.KeyMax, err = fromJSONB(keyMax); err != nil {
				return err
			}
			files = append(files, e)
		}
		return classify(rows.Err())
	})
	if err != nil {
		return nil, fmt.Errorf("error listing files: %w", err)
	}
	return files, nil
}

// Shutdown closes the pool.
func (cms *CRDBMetaStore) Shutdown(_ context.Context) error {
	cms.pool.Close()
	return nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUndefinedTable {
		return fmt.Errorf("%s: %w", pgErr.Message, ErrCatalogNotMigrated)
	}
	return err
}

// Key bounds are stored as JSON, so numeric keys read back as float64 the
// same way the file manifest decodes them.
func toJSONB(v any) (pgtype.JSONB, error) {
	if v == nil {
		return pgtype.JSONB{Status: pgtype.Null}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return pgtype.JSONB{}, fmt.Errorf("error in json.Marshal: %w", err)
	}
	return pgtype.JSONB{Bytes: b, Status: pgtype.Present}, nil
}

func fromJSONB(j pgtype.JSONB) (any, error) {
	if j.Status != pgtype.Present {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(j.Bytes, &v); err != nil {
		return nil, fmt.Errorf("error in json.Unmarshal: %s %w", err.Error(), utils.ErrUnreadableFile)
	}
	return v, nil
}

var _ MetaStore = &CRDBMetaStore{}
