// Package models — CallRecord: arşivlenen biten arama kaydı.
//
// Canlı transcript log'u session bittiğinde temizlenir; CallRecord bunun
// teardown anında alınan tek seferlik kopyasıdır. history paketi SQLite'a
// yazar, CLI ve lokal API okur.
package models

import (
	"time"

	"github.com/google/uuid"
)

// CallRecord, sonlanmış bir aramanın arşiv kaydıdır.
type CallRecord struct {
	ID          string       `json:"id"`
	RoomID      string       `json:"room_id"`
	Role        Role         `json:"role"`
	Language    string       `json:"language"`
	PeerName    string       `json:"peer_name"`
	EndReason   string       `json:"end_reason"`
	StartedAt   time.Time    `json:"started_at"`
	EndedAt     time.Time    `json:"ended_at"`
	Transcripts []Transcript `json:"transcripts,omitempty"`
}

// NewCallRecord, teardown anında session'dan arşiv kaydı üretir.
func NewCallRecord(session *Session, peerName, endReason string, transcripts []Transcript) *CallRecord {
	return &CallRecord{
		ID:          uuid.New().String(),
		RoomID:      session.RoomID,
		Role:        session.Role,
		Language:    session.Language,
		PeerName:    peerName,
		EndReason:   endReason,
		StartedAt:   session.StartedAt,
		EndedAt:     time.Now().UTC(),
		Transcripts: transcripts,
	}
}

// Duration, aramanın toplam süresini döner.
func (r *CallRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
