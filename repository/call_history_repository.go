// Package repository — CallHistoryRepository, arama arşivinin data
// access interface'i.
//
// Yazan taraf SessionController'ın teardown'ıdır (tek seferlik Insert),
// okuyan taraf CLI'ın history komutu ve lokal API'dir.
package repository

import (
	"context"

	"github.com/primetalker/callkit/models"
)

// CallHistoryRepository, arama arşivi için data access interface.
type CallHistoryRepository interface {
	// Insert, sonlanmış bir aramayı transcript satırlarıyla birlikte
	// atomik olarak kaydeder. Session başına bir kez çağrılır.
	Insert(ctx context.Context, record *models.CallRecord) error

	// List, en son biten aramaları (transcript'siz) döner.
	// limit <= 0 ise makul bir varsayılan uygulanır.
	List(ctx context.Context, limit int) ([]models.CallRecord, error)

	// Get, tek bir aramayı transcript satırlarıyla birlikte döner.
	// Kayıt yoksa pkg.ErrNotFound (sarılı) döner.
	Get(ctx context.Context, id string) (*models.CallRecord, error)
}
