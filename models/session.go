// Package models — Session domain modeli.
//
// Bir Session, tek bir arama denemesini temsil eder: oda kimliği, rol ve dil.
// Role ve Language session ömrü boyunca SABİTTİR — değiştirmek yeni bir
// session gerektirir. Hiçbir bileşen ortam (global) state okumaz; session
// değeri bir kez oluşturulur ve her bileşene explicit olarak verilir.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/primetalker/callkit/pkg"
)

// Role, arama katılımcısının rolünü temsil eden typed constant.
// Backend "userType" alanında aynı string'leri bekler.
type Role string

const (
	RoleCaller   Role = "caller"
	RoleReceiver Role = "receiver"
)

// Valid, rolün tanınan bir değer olup olmadığını kontrol eder.
func (r Role) Valid() bool {
	return r == RoleCaller || r == RoleReceiver
}

// Counter, karşı rolü döner (caller ↔ receiver).
// PresenceMonitor karşı rolün dil/isim alanlarını bu yönle seçer.
func (r Role) Counter() Role {
	if r == RoleCaller {
		return RoleReceiver
	}
	return RoleCaller
}

// Session, tek bir arama denemesinin kimliğidir.
//
// ID: client tarafında üretilen opak etiket — in-flight poll yanıtlarının
// hangi session'a ait olduğunu ayırt etmek için kullanılır (stale yanıt
// teardown sonrası state'i değiştiremez).
// StartedAt: transcript cursor'ının başlangıç değeri.
type Session struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Role      Role      `json:"role"`
	Language  string    `json:"language"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// NewSession, doğrulanmış bir Session oluşturur.
func NewSession(roomID string, role Role, language, name string) (*Session, error) {
	if roomID == "" {
		return nil, fmt.Errorf("%w: room id is required", pkg.ErrBadRequest)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", pkg.ErrBadRequest, role)
	}
	if language == "" {
		return nil, fmt.Errorf("%w: language is required", pkg.ErrBadRequest)
	}

	return &Session{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Role:      role,
		Language:  language,
		Name:      name,
		StartedAt: time.Now().UTC(),
	}, nil
}
