package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paidmesh/paidmesh/internal/logger"
	"github.com/paidmesh/paidmesh/pkg/message"
)

// PostgresConfig holds the PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// PostgresStore persists events in a "events" table plus a "event_slots"
// table used to serialize replaceable/parameterized-replaceable upserts
// with row-level locking.
type PostgresStore struct {
	pool   *pgxpool.Pool
	Logger logger.Logger
}

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("store: connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &PostgresStore{pool: pool, Logger: logger.GetDefaultLogger()}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.Logger.Info("store: connected to postgres", logger.String("host", cfg.Host), logger.String("database", cfg.Database))
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	author_key TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	kind INT NOT NULL,
	tags JSONB NOT NULL,
	content TEXT NOT NULL,
	signature TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_author_kind_idx ON events (author_key, kind);
CREATE INDEX IF NOT EXISTS events_created_at_idx ON events (created_at DESC, id ASC);

CREATE TABLE IF NOT EXISTS event_slots (
	slot_key TEXT PRIMARY KEY,
	event_id TEXT NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func scanEvent(row pgx.Row) (*message.SignedMessage, error) {
	var (
		msg     message.SignedMessage
		tagsRaw []byte
	)
	if err := row.Scan(&msg.ID, &msg.AuthorKey, &msg.CreatedAt, &msg.Kind, &tagsRaw, &msg.Content, &msg.Signature); err != nil {
		return nil, err
	}
	var raw [][]string
	if err := json.Unmarshal(tagsRaw, &raw); err != nil {
		return nil, fmt.Errorf("store: unmarshal tags: %w", err)
	}
	msg.Tags = make([]message.Tag, len(raw))
	for i, t := range raw {
		msg.Tags[i] = message.Tag(t)
	}
	return &msg, nil
}

// Put implements EventStore.
func (s *PostgresStore) Put(ctx context.Context, msg *message.SignedMessage) (PutResult, error) {
	if msg.Kind == DeletionKind {
		if err := s.ApplyDeletion(ctx, msg); err != nil {
			return 0, err
		}
		return Deleted, nil
	}

	class := message.ClassifyKind(msg.Kind)
	if class == message.ClassEphemeral {
		return Stored, nil
	}

	tagsRaw, err := json.Marshal(tagsToStrings(msg.Tags))
	if err != nil {
		return 0, fmt.Errorf("store: marshal tags: %w", err)
	}

	if class == message.ClassRegular {
		tag, err := s.pool.Exec(ctx, `
INSERT INTO events (id, author_key, created_at, kind, tags, content, signature)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING`,
			msg.ID, msg.AuthorKey, msg.CreatedAt, msg.Kind, tagsRaw, msg.Content, msg.Signature)
		if err != nil {
			return 0, fmt.Errorf("store: insert: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return IgnoredDuplicate, nil
		}
		return Stored, nil
	}

	var slotKey string
	if class == message.ClassReplaceable {
		slotKey = replaceableSlotKey(msg.AuthorKey, msg.Kind)
	} else {
		slotKey = parameterizedSlotKey(msg.AuthorKey, msg.Kind, message.DTagValue(msg.Tags))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var incumbentID string
	err = tx.QueryRow(ctx, `SELECT event_id FROM event_slots WHERE slot_key=$1 FOR UPDATE`, slotKey).Scan(&incumbentID)
	var incumbent *message.SignedMessage
	if err == nil {
		incumbent, err = scanEvent(tx.QueryRow(ctx, `SELECT id,author_key,created_at,kind,tags,content,signature FROM events WHERE id=$1`, incumbentID))
		if err != nil && err != pgx.ErrNoRows {
			return 0, fmt.Errorf("store: load incumbent: %w", err)
		}
	} else if err != pgx.ErrNoRows {
		return 0, fmt.Errorf("store: lock slot: %w", err)
	}

	if !WinsSlot(msg, incumbent) {
		return IgnoredOlder, nil
	}

	if incumbent != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM events WHERE id=$1`, incumbent.ID); err != nil {
			return 0, fmt.Errorf("store: delete incumbent: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO events (id, author_key, created_at, kind, tags, content, signature)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		msg.ID, msg.AuthorKey, msg.CreatedAt, msg.Kind, tagsRaw, msg.Content, msg.Signature); err != nil {
		return 0, fmt.Errorf("store: insert winner: %w", err)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO event_slots (slot_key, event_id) VALUES ($1,$2)
ON CONFLICT (slot_key) DO UPDATE SET event_id=EXCLUDED.event_id`, slotKey, msg.ID); err != nil {
		return 0, fmt.Errorf("store: upsert slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return Stored, nil
}

func tagsToStrings(tags []message.Tag) [][]string {
	out := make([][]string, len(tags))
	for i, t := range tags {
		out[i] = []string(t)
	}
	return out
}

// Get implements EventStore.
func (s *PostgresStore) Get(ctx context.Context, id string) (*message.SignedMessage, error) {
	row := s.pool.QueryRow(ctx, `SELECT id,author_key,created_at,kind,tags,content,signature FROM events WHERE id=$1`, id)
	msg, err := scanEvent(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	return msg, nil
}

// QueryMany implements EventStore. Each filter is translated into a WHERE
// clause on the indexed columns; tag and prefix matching is applied in Go
// against the resulting candidate rows.
func (s *PostgresStore) QueryMany(ctx context.Context, filters []message.Filter) ([]*message.SignedMessage, error) {
	seen := make(map[string]bool)
	var results []*message.SignedMessage

	for _, f := range filters {
		where, args := buildWhere(f)
		query := `SELECT id,author_key,created_at,kind,tags,content,signature FROM events`
		if where != "" {
			query += " WHERE " + where
		}
		query += " ORDER BY created_at DESC, id ASC"

		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("store: query: %w", err)
		}

		var matched []*message.SignedMessage
		for rows.Next() {
			msg, err := scanEvent(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("store: scan: %w", err)
			}
			if !Matches(msg, &f) {
				continue
			}
			matched = append(matched, msg)
			if f.Limit > 0 && len(matched) >= f.Limit {
				break
			}
		}
		rows.Close()

		for _, msg := range matched {
			if !seen[msg.ID] {
				seen[msg.ID] = true
				results = append(results, msg)
			}
		}
	}

	sortMessages(results)
	return results, nil
}

func sortMessages(msgs []*message.SignedMessage) {
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && Less(msgs[j], msgs[j-1]); j-- {
			msgs[j], msgs[j-1] = msgs[j-1], msgs[j]
		}
	}
}

// buildWhere produces a coarse, index-friendly WHERE clause (exact-kind and
// since/until bounds); prefix and tag matching happen in Matches.
func buildWhere(f message.Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	i := 1

	if len(f.Kinds) > 0 {
		placeholders := make([]string, len(f.Kinds))
		for j, k := range f.Kinds {
			placeholders[j] = fmt.Sprintf("$%d", i)
			args = append(args, k)
			i++
		}
		clauses = append(clauses, "kind IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.Since != 0 {
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", i))
		args = append(args, f.Since)
		i++
	}
	if f.Until != 0 {
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", i))
		args = append(args, f.Until)
		i++
	}
	return strings.Join(clauses, " AND "), args
}

// ApplyDeletion implements EventStore.
func (s *PostgresStore) ApplyDeletion(ctx context.Context, delMsg *message.SignedMessage) error {
	for _, tag := range delMsg.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "e":
			if _, err := s.pool.Exec(ctx, `DELETE FROM events WHERE id=$1 AND author_key=$2`, tag[1], delMsg.AuthorKey); err != nil {
				return fmt.Errorf("store: delete: %w", err)
			}
		case "a":
			parts := strings.SplitN(tag[1], ":", 3)
			if len(parts) < 2 || parts[1] != delMsg.AuthorKey {
				continue
			}
			kindNum, err := strconv.Atoi(parts[0])
			if err != nil {
				continue
			}
			dTag := ""
			if len(parts) == 3 {
				dTag = parts[2]
			}
			slotKey := parameterizedSlotKey(delMsg.AuthorKey, uint16(kindNum), dTag)
			if _, err := s.pool.Exec(ctx, `
DELETE FROM events WHERE id = (SELECT event_id FROM event_slots WHERE slot_key=$1) AND author_key=$2`,
				slotKey, delMsg.AuthorKey); err != nil {
				return fmt.Errorf("store: delete addressable: %w", err)
			}
		}
	}
	return nil
}

// Close implements EventStore.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping implements EventStore.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
