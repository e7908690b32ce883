// Package inmem provides in-memory repositories for tests and local runs
// without a database.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/attenx/attenx/core/sheet"
)

type sheetRepository struct {
	mu         sync.Mutex
	sheets     map[int]sheet.Sheet
	signatures map[int]sheet.Signature
	sheetPK    int
	sigPK      int
}

var _ sheet.Repository = (*sheetRepository)(nil) // interface compliance check

func NewSheetRepository() *sheetRepository {
	return &sheetRepository{
		sheets:     make(map[int]sheet.Sheet),
		signatures: make(map[int]sheet.Signature),
	}
}

func (repo *sheetRepository) CreateSheet(ctx context.Context, sht sheet.Sheet) (sheet.Sheet, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.sheetPK++
	sht.ID = repo.sheetPK
	repo.sheets[sht.ID] = sht
	return sht, nil
}

func (repo *sheetRepository) GetSheetByID(ctx context.Context, id int) (sheet.Sheet, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	sht, ok := repo.sheets[id]
	if !ok {
		return sheet.Sheet{}, sheet.ErrNotFound
	}
	return sht, nil
}

func (repo *sheetRepository) MarkSheetProcessing(ctx context.Context, id int, startedAt time.Time) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	sht, ok := repo.sheets[id]
	if !ok {
		return sheet.ErrNotFound
	}
	sht.Status = sheet.StatusProcessing
	sht.ProcessedAt = null.TimeFrom(startedAt)
	sht.UpdatedAt = startedAt
	repo.sheets[id] = sht
	return nil
}

func (repo *sheetRepository) SetSheetStatus(ctx context.Context, id int, status string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	sht, ok := repo.sheets[id]
	if !ok {
		return sheet.ErrNotFound
	}
	sht.Status = status
	sht.UpdatedAt = time.Now().UTC()
	repo.sheets[id] = sht
	return nil
}

func (repo *sheetRepository) CompleteSheet(ctx context.Context, id int, totalSignatures, anomaliesCount int) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	sht, ok := repo.sheets[id]
	if !ok {
		return sheet.ErrNotFound
	}
	sht.Status = sheet.StatusCompleted
	sht.TotalSignatures = totalSignatures
	sht.AnomaliesCount = anomaliesCount
	sht.UpdatedAt = time.Now().UTC()
	repo.sheets[id] = sht
	return nil
}

func (repo *sheetRepository) CreateSignature(ctx context.Context, sig sheet.Signature) (sheet.Signature, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.sigPK++
	sig.ID = repo.sigPK
	repo.signatures[sig.ID] = sig
	return sig, nil
}

func (repo *sheetRepository) QuerySheetSignatures(ctx context.Context, sheetID int) ([]sheet.Signature, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	sigs := make([]sheet.Signature, 0)
	for i := 1; i <= repo.sigPK; i++ {
		if sig, ok := repo.signatures[i]; ok && sig.SheetID == sheetID {
			sigs = append(sigs, sig)
		}
	}
	return sigs, nil
}
