package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/docstore/migrations"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// notifyChannel is the single LISTEN/NOTIFY channel; payloads carry the
// owner id so subscribers can filter.
const notifyChannel = "vault_item_changes"

// Postgres is the reference Store adapter. Data operations go through
// database/sql with the pgx driver; Subscribe holds a dedicated pgx
// connection in LISTEN mode.
type Postgres struct {
	db  *sql.DB
	dsn string
	log logging.Logger
}

func NewPostgres(ctx context.Context, dsn string, log logging.Logger) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	p := &Postgres{db: db, dsn: dsn, log: log.With("component", "docstore")}
	if err := p.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, p.db, ".")
}

func (p *Postgres) Close() error { return p.db.Close() }

type notifyPayload struct {
	OwnerID string `json:"owner_id"`
	ItemID  string `json:"item_id"`
	Removed bool   `json:"removed"`
}

func (p *Postgres) Put(ctx context.Context, item *models.VaultItem, opID string) (*models.VaultItem, error) {
	var stored *models.VaultItem

	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		applied, err := markApplied(ctx, tx, opID)
		if err != nil {
			return err
		}
		if !applied {
			// retried write: no duplicate effect, return current state
			stored, err = getItem(ctx, tx, item.OwnerID, item.ID)
			return err
		}

		var current int64
		err = tx.QueryRowContext(ctx, `SELECT version FROM items WHERE id = $1 FOR UPDATE`, item.ID).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			current = 0
		case err != nil:
			return fmt.Errorf("failed to read item version: %w", err)
		}

		if current > item.Version {
			return common.ErrConflict
		}

		next := cloneItem(item)
		next.Version = current + 1
		doc, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO items (id, owner_id, parent_id, version, doc)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				parent_id = excluded.parent_id,
				version = excluded.version,
				doc = excluded.doc`,
			next.ID, next.OwnerID, next.ParentID, next.Version, doc)
		if err != nil {
			return fmt.Errorf("failed to upsert item: %w", err)
		}

		stored = next
		return notify(ctx, tx, notifyPayload{OwnerID: next.OwnerID, ItemID: next.ID})
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (p *Postgres) Get(ctx context.Context, ownerID, itemID string) (*models.VaultItem, error) {
	return getItem(ctx, p.db, ownerID, itemID)
}

func (p *Postgres) Query(ctx context.Context, ownerID, parentID string) ([]*models.VaultItem, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT doc, version FROM items WHERE owner_id = $1 AND parent_id = $2`, ownerID, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var result []*models.VaultItem
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (p *Postgres) Delete(ctx context.Context, ownerID, itemID, opID string) error {
	return dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		applied, err := markApplied(ctx, tx, opID)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM items WHERE id = $1 AND owner_id = $2`, itemID, ownerID)
		if err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra == 0 {
			return common.ErrNotFound
		}

		return notify(ctx, tx, notifyPayload{OwnerID: ownerID, ItemID: itemID, Removed: true})
	})
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Subscribe opens a dedicated connection in LISTEN mode and streams change
// events for ownerID until stop is called or ctx is done.
func (p *Postgres) Subscribe(ctx context.Context, ownerID string) (<-chan ChangeEvent, func(), error) {
	conn, err := pgx.Connect(ctx, p.dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		_ = conn.Close(ctx)
		return nil, nil, fmt.Errorf("failed to listen: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch := make(chan ChangeEvent, 64)

	go func() {
		defer close(ch)
		defer func() { _ = conn.Close(context.Background()) }()

		for {
			n, err := conn.WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() == nil {
					p.log.Error(subCtx, "notification wait failed", "err", err)
				}
				return
			}

			var payload notifyPayload
			if err := json.Unmarshal([]byte(n.Payload), &payload); err != nil {
				p.log.Warn(subCtx, "malformed change notification", "err", err)
				continue
			}
			if payload.OwnerID != ownerID {
				continue
			}

			ev := ChangeEvent{OwnerID: payload.OwnerID, ItemID: payload.ItemID, Removed: payload.Removed}
			if !payload.Removed {
				item, err := p.Get(subCtx, payload.OwnerID, payload.ItemID)
				if err != nil {
					p.log.Warn(subCtx, "failed to load changed item", "item_id", payload.ItemID, "err", err)
					continue
				}
				ev.Item = item
			}

			select {
			case ch <- ev:
			case <-subCtx.Done():
				return
			}
		}
	}()

	return ch, cancel, nil
}

// markApplied records opID; it reports false when the operation was already
// applied, which makes retried writes no-ops.
func markApplied(ctx context.Context, tx dbx.DBTX, opID string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO applied_ops (op_id) VALUES ($1) ON CONFLICT DO NOTHING`, opID)
	if err != nil {
		return false, fmt.Errorf("failed to record operation: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return ra == 1, nil
}

func notify(ctx context.Context, tx dbx.DBTX, payload notifyPayload) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(b)); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}

func getItem(ctx context.Context, db dbx.DBTX, ownerID, itemID string) (*models.VaultItem, error) {
	row := db.QueryRowContext(ctx,
		`SELECT doc, version FROM items WHERE id = $1 AND owner_id = $2`, itemID, ownerID)
	item, err := scanItem(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return item, err
}

func scanItem(scan func(dest ...any) error) (*models.VaultItem, error) {
	var doc []byte
	var version int64
	if err := scan(&doc, &version); err != nil {
		return nil, err
	}
	item := &models.VaultItem{}
	if err := json.Unmarshal(doc, item); err != nil {
		return nil, fmt.Errorf("failed to decode item document: %w", err)
	}
	item.Version = version
	return item, nil
}
