// Package repository — CallHistoryRepository'nin SQLite implementasyonu.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/primetalker/callkit/database"
	"github.com/primetalker/callkit/models"
	"github.com/primetalker/callkit/pkg"
)

// defaultListLimit, List'e limit verilmediğinde kullanılır.
const defaultListLimit = 50

type sqliteCallHistoryRepo struct {
	db *database.DB
}

// NewSQLiteCallHistoryRepo, constructor — interface döner.
func NewSQLiteCallHistoryRepo(db *database.DB) CallHistoryRepository {
	return &sqliteCallHistoryRepo{db: db}
}

// Insert, call kaydını ve transcript satırlarını tek transaction'da yazar.
func (r *sqliteCallHistoryRepo) Insert(ctx context.Context, record *models.CallRecord) error {
	return database.WithTx(ctx, r.db.Conn, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO calls (id, room_id, role, language, peer_name, end_reason, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID,
			record.RoomID,
			string(record.Role),
			record.Language,
			record.PeerName,
			record.EndReason,
			record.StartedAt.UTC(),
			record.EndedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert call record: %w", err)
		}

		for seq, line := range record.Transcripts {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO transcript_lines (call_id, seq, user_type, source_lang, target_lang, original_text, translated_text)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				record.ID,
				seq,
				string(line.UserType),
				line.SourceLang,
				line.TargetLang,
				line.OriginalText,
				line.TranslatedText,
			)
			if err != nil {
				return fmt.Errorf("failed to insert transcript line %d: %w", seq, err)
			}
		}

		return nil
	})
}

// List, en son biten aramaları döner. Transcript satırları dahil edilmez —
// liste görünümü için gereksiz yükten kaçınılır.
func (r *sqliteCallHistoryRepo) List(ctx context.Context, limit int) ([]models.CallRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.Conn.QueryContext(ctx, `
		SELECT id, room_id, role, language, peer_name, end_reason, started_at, ended_at
		FROM calls
		ORDER BY ended_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list call records: %w", err)
	}
	defer rows.Close()

	var records []models.CallRecord
	for rows.Next() {
		var rec models.CallRecord
		var role string
		if err := rows.Scan(&rec.ID, &rec.RoomID, &role, &rec.Language,
			&rec.PeerName, &rec.EndReason, &rec.StartedAt, &rec.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan call record: %w", err)
		}
		rec.Role = models.Role(role)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call records: %w", err)
	}

	return records, nil
}

// Get, tek bir aramayı transcript satırlarıyla birlikte döner.
func (r *sqliteCallHistoryRepo) Get(ctx context.Context, id string) (*models.CallRecord, error) {
	var rec models.CallRecord
	var role string
	err := r.db.Conn.QueryRowContext(ctx, `
		SELECT id, room_id, role, language, peer_name, end_reason, started_at, ended_at
		FROM calls
		WHERE id = ?`, id).Scan(&rec.ID, &rec.RoomID, &role, &rec.Language,
		&rec.PeerName, &rec.EndReason, &rec.StartedAt, &rec.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: call %s", pkg.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}
	rec.Role = models.Role(role)

	rows, err := r.db.Conn.QueryContext(ctx, `
		SELECT user_type, source_lang, target_lang, original_text, translated_text
		FROM transcript_lines
		WHERE call_id = ?
		ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line models.Transcript
		var userType string
		if err := rows.Scan(&userType, &line.SourceLang, &line.TargetLang,
			&line.OriginalText, &line.TranslatedText); err != nil {
			return nil, fmt.Errorf("failed to scan transcript line: %w", err)
		}
		line.UserType = models.Role(userType)
		rec.Transcripts = append(rec.Transcripts, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcript lines: %w", err)
	}

	return &rec, nil
}
