package chatdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"

	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/imessage"
)

// Store is the durable local cache of chats and handles. It outlives any
// selection or creation flow: rows written here survive gateway restarts and
// are the fallback source of truth when the relay is unreachable.
type Store struct {
	db *dbutil.Database
}

// Chat is a locally cached chat record.
type Chat struct {
	GUID        string
	Service     imessage.Service
	Identifier  string
	DisplayName string
	// Participants holds the normalized member addresses for group chats.
	// Empty for single-recipient chats (the identifier is the participant).
	Participants []string
	// LastMessageTS is the unix-millisecond timestamp of the newest message
	// in the chat. Zero means the chat is an empty placeholder with no
	// history — reconciliation prefers chats with real history over these.
	LastMessageTS int64
	CreatedTS     int64
}

// Handle is a known (address, service) contact endpoint.
type Handle struct {
	Address     string
	Service     imessage.Service
	DisplayName string
	UpdatedTS   int64
}

// New opens (or creates) the SQLite store at path and runs schema setup.
// WAL mode and a busy timeout keep concurrent CLI invocations from failing
// with SQLITE_BUSY.
func New(path string, log zerolog.Logger) (*Store, error) {
	db, err := dbutil.NewWithDialect(
		path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
		"sqlite3",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat database: %w", err)
	}
	db.Log = dbutil.ZeroLogger(log.With().Str("component", "chatdb").Logger())
	store := &Store{db: db}
	if err = store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS chat (
			guid TEXT PRIMARY KEY,
			service TEXT NOT NULL,
			identifier TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			last_message_ts BIGINT NOT NULL DEFAULT 0,
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS handle (
			address TEXT PRIMARY KEY,
			service TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS chat_identifier_idx
			ON chat (identifier, last_message_ts)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to ensure chat schema: %w", err)
		}
	}

	// Migration: add participants_json if missing (SQLite has no
	// IF NOT EXISTS on ALTER TABLE, so probe pragma_table_info first).
	var hasParticipants int
	_ = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM pragma_table_info('chat') WHERE name='participants_json'`).Scan(&hasParticipants)
	if hasParticipants == 0 {
		if _, err := s.db.Exec(ctx, `ALTER TABLE chat ADD COLUMN participants_json TEXT NOT NULL DEFAULT '[]'`); err != nil {
			return fmt.Errorf("failed to add participants_json column: %w", err)
		}
	}
	return nil
}

const chatColumns = `guid, service, identifier, display_name, participants_json, last_message_ts, created_ts`

func scanChat(row dbutil.Scannable) (*Chat, error) {
	var chat Chat
	var service, participantsJSON string
	err := row.Scan(&chat.GUID, &service, &chat.Identifier, &chat.DisplayName, &participantsJSON, &chat.LastMessageTS, &chat.CreatedTS)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	chat.Service = imessage.ParseService(service)
	if err = json.Unmarshal([]byte(participantsJSON), &chat.Participants); err != nil {
		return nil, fmt.Errorf("failed to parse participants for chat %s: %w", chat.GUID, err)
	}
	return &chat, nil
}

// GetChat returns the chat with the exact GUID, or nil if absent.
func (s *Store) GetChat(ctx context.Context, guid string) (*Chat, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+chatColumns+` FROM chat WHERE guid=$1`,
		guid,
	)
	return scanChat(row)
}

// InsertChat creates a new chat row. Fails on a duplicate GUID — callers that
// want create-or-update semantics use UpsertChat.
func (s *Store) InsertChat(ctx context.Context, chat *Chat) error {
	participantsJSON, err := json.Marshal(orEmpty(chat.Participants))
	if err != nil {
		return err
	}
	nowMS := time.Now().UnixMilli()
	if chat.CreatedTS == 0 {
		chat.CreatedTS = nowMS
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO chat (guid, service, identifier, display_name, participants_json, last_message_ts, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, chat.GUID, string(chat.Service), chat.Identifier, chat.DisplayName, string(participantsJSON), chat.LastMessageTS, chat.CreatedTS, nowMS)
	return err
}

// UpsertChat inserts or refreshes a chat row. The last_message_ts only ever
// moves forward: a re-sync delivering stale data can never rewind a chat's
// recorded activity.
func (s *Store) UpsertChat(ctx context.Context, chat *Chat) error {
	participantsJSON, err := json.Marshal(orEmpty(chat.Participants))
	if err != nil {
		return err
	}
	nowMS := time.Now().UnixMilli()
	_, err = s.db.Exec(ctx, `
		INSERT INTO chat (guid, service, identifier, display_name, participants_json, last_message_ts, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (guid) DO UPDATE SET
			service=excluded.service,
			identifier=excluded.identifier,
			display_name=CASE
				WHEN excluded.display_name <> '' THEN excluded.display_name
				ELSE chat.display_name
			END,
			participants_json=excluded.participants_json,
			last_message_ts=CASE
				WHEN excluded.last_message_ts > chat.last_message_ts
				THEN excluded.last_message_ts
				ELSE chat.last_message_ts
			END,
			updated_ts=excluded.updated_ts
	`, chat.GUID, string(chat.Service), chat.Identifier, chat.DisplayName, string(participantsJSON), chat.LastMessageTS, nowMS, nowMS)
	return err
}

// HasChat reports whether a chat row exists for the exact GUID.
func (s *Store) HasChat(ctx context.Context, guid string) (bool, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chat WHERE guid=$1`,
		guid,
	).Scan(&count)
	return count > 0, err
}

// TouchChat bumps last_message_ts for a chat (monotonic, same guard as
// UpsertChat).
func (s *Store) TouchChat(ctx context.Context, guid string, tsMS int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE chat SET last_message_ts=$2, updated_ts=$3
		WHERE guid=$1 AND last_message_ts < $2
	`, guid, tsMS, time.Now().UnixMilli())
	return err
}

// SetDisplayName updates the stored display name for a chat.
func (s *Store) SetDisplayName(ctx context.Context, guid, displayName string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE chat SET display_name=$2, updated_ts=$3 WHERE guid=$1
	`, guid, displayName, time.Now().UnixMilli())
	return err
}

// LatestChatForIdentifier returns the most recently active chat for a
// normalized address that has at least one message, regardless of which
// service prefix its GUID carries. This is the resolver's offline fallback:
// "whatever service we last actually talked to this address on".
func (s *Store) LatestChatForIdentifier(ctx context.Context, identifier string) (*Chat, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+chatColumns+` FROM chat
		WHERE identifier=$1 AND last_message_ts > 0
		ORDER BY last_message_ts DESC LIMIT 1`,
		identifier,
	)
	return scanChat(row)
}

// RecentChats returns chats ordered by most recent activity. Placeholder
// chats with no history sort last (by creation time).
func (s *Store) RecentChats(ctx context.Context, limit int) ([]*Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+chatColumns+` FROM chat
		ORDER BY last_message_ts DESC, created_ts DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chats []*Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// SaveHandle upserts a known contact endpoint. A handle that was previously
// recorded as SMS and is now seen on iMessage gets upgraded; the reverse
// also happens, since availability genuinely changes (deregistered numbers).
func (s *Store) SaveHandle(ctx context.Context, handle *Handle) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO handle (address, service, display_name, updated_ts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			service=excluded.service,
			display_name=CASE
				WHEN excluded.display_name <> '' THEN excluded.display_name
				ELSE handle.display_name
			END,
			updated_ts=excluded.updated_ts
	`, handle.Address, string(handle.Service), handle.DisplayName, time.Now().UnixMilli())
	return err
}

// GetHandle returns the stored handle for a normalized address, or nil.
func (s *Store) GetHandle(ctx context.Context, address string) (*Handle, error) {
	var handle Handle
	var service string
	err := s.db.QueryRow(ctx,
		`SELECT address, service, display_name, updated_ts FROM handle WHERE address=$1`,
		address,
	).Scan(&handle.Address, &service, &handle.DisplayName, &handle.UpdatedTS)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	handle.Service = imessage.ParseService(service)
	return &handle, nil
}

// CountChats returns the total number of cached chats.
func (s *Store) CountChats(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM chat`).Scan(&count)
	return count, err
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
