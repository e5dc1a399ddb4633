// Package localstore хранит офлайн-состояние клиента в одном sqlite-файле:
// снимок, очередь ожидающих изменений, курсор синхронизации и client id.
package localstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"brianhub/internal/models/change"
	syncpkg "brianhub/internal/sync"
)

//go:embed schema.sql
var schemaFS embed.FS

const (
	metaClientID = "client_id"
	metaLocalSeq = "local_seq"
	metaCursor   = "server_cursor"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("путь к локальной базе обязателен")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("чтение схемы: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), string(schemaSQL)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("применение схемы: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ClientID возвращает стабильный идентификатор этой установки, создавая
// его при первом обращении.
func (s *Store) ClientID(ctx context.Context) (string, error) {
	id, err := s.getMeta(ctx, metaClientID)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	id = "web-" + uuid.NewString()
	if err := s.setMeta(ctx, metaClientID, id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) LoadSnapshot(ctx context.Context) (*syncpkg.Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshot WHERE id = 1").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return syncpkg.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("чтение снимка: %w", err)
	}

	snap := syncpkg.NewSnapshot()
	if err := json.Unmarshal([]byte(raw), snap); err != nil {
		// битый снимок не фатален: клиент начнёт с пустого и сделает рефреш
		return syncpkg.NewSnapshot(), nil
	}
	return snap, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, snap *syncpkg.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("сериализация снимка: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshot (id, data, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("запись снимка: %w", err)
	}
	return nil
}

func (s *Store) LoadQueue(ctx context.Context) (syncpkg.QueueState, error) {
	state := syncpkg.QueueState{PendingChanges: []change.Change{}}

	seqRaw, err := s.getMeta(ctx, metaLocalSeq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return state, err
	}
	if seqRaw != "" {
		if seq, err := strconv.ParseInt(seqRaw, 10, 64); err == nil {
			state.LocalSeq = seq
		}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, entity_type, entity_id, action, payload, created_at FROM pending_changes ORDER BY seq ASC")
	if err != nil {
		return state, fmt.Errorf("чтение очереди: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c         change.Change
			payload   string
			createdAt string
		)
		if err := rows.Scan(&c.Seq, &c.EntityType, &c.EntityID, &c.Action, &payload, &createdAt); err != nil {
			return state, fmt.Errorf("скан записи очереди: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &c.Payload); err != nil {
			c.Payload = map[string]any{}
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			c.CreatedAt = t
		}
		state.PendingChanges = append(state.PendingChanges, c)
	}
	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("итерация по очереди: %w", err)
	}
	return state, nil
}

// SaveQueue переписывает очередь целиком: записи удаляются только после
// того, как сервер их надёжно принял, так что замена - единственный режим.
func (s *Store) SaveQueue(ctx context.Context, state syncpkg.QueueState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM pending_changes"); err != nil {
		return fmt.Errorf("очистка очереди: %w", err)
	}
	for _, c := range state.PendingChanges {
		payload, err := json.Marshal(c.Payload)
		if err != nil {
			return fmt.Errorf("сериализация payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO pending_changes (seq, entity_type, entity_id, action, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			c.Seq, string(c.EntityType), c.EntityID, string(c.Action), string(payload),
			c.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("запись очереди: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sync_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		metaLocalSeq, strconv.FormatInt(state.LocalSeq, 10)); err != nil {
		return fmt.Errorf("запись local_seq: %w", err)
	}
	return tx.Commit()
}

func (s *Store) Cursor(ctx context.Context) (int64, error) {
	raw, err := s.getMeta(ctx, metaCursor)
	if errors.Is(err, sql.ErrNoRows) || raw == "" {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// SetCursor не даёт курсору откатиться назад.
func (s *Store) SetCursor(ctx context.Context, cursor int64) error {
	current, err := s.Cursor(ctx)
	if err != nil {
		return err
	}
	if cursor <= current {
		return nil
	}
	return s.setMeta(ctx, metaCursor, strconv.FormatInt(cursor, 10))
}

func (s *Store) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM sync_meta WHERE key = ?", key).Scan(&value)
	return value, err
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sync_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}
