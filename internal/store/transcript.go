package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

type transcriptRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *transcriptRepo) AppendMessage(ctx context.Context, rec TranscriptRecord) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	kind := rec.Kind
	if kind == "" {
		kind = "text"
	}

	query, args := entsql.Dialect(dialect.SQLite).
		Insert(TranscriptMessagesTable.Name).
		Columns("sequence", "timestamp", "session_id", "message_id", "language", "role", "kind", "content").
		Values(seqNum, ts.UTC(), rec.SessionID, rec.MessageID, rec.Language, rec.Role, kind, rec.Content).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("archive message: %w", err)
	}
	return nil
}

func (r *transcriptRepo) SessionMessages(ctx context.Context, sessionID string) ([]TranscriptRecord, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select("sequence", "timestamp", "session_id", "message_id", "language", "role", "kind", "content").
		From(entsql.Table(TranscriptMessagesTable.Name)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy("sequence").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var out []TranscriptRecord
	for rows.Next() {
		var rec TranscriptRecord
		if err := rows.Scan(
			&rec.Sequence,
			&rec.Timestamp,
			&rec.SessionID,
			&rec.MessageID,
			&rec.Language,
			&rec.Role,
			&rec.Kind,
			&rec.Content,
		); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
