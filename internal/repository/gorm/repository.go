package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"polytrade/internal/models"
	"polytrade/internal/repository"
)

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ repository.Repository = (*Repository)(nil)

func (r *Repository) InsertOrderRecord(ctx context.Context, rec *models.OrderRecord) error {
	if rec == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repository) UpdateOrderRecordStatus(ctx context.Context, id uint64, status string, fields map[string]any) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}
	return r.db.WithContext(ctx).
		Model(&models.OrderRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *Repository) ListOrderRecords(ctx context.Context, params repository.ListOrderRecordsParams) ([]models.OrderRecord, error) {
	q := r.db.WithContext(ctx).Model(&models.OrderRecord{})
	if params.Status != nil {
		q = q.Where("status = ?", *params.Status)
	}
	if params.Maker != nil {
		q = q.Where("maker = ?", strings.ToLower(*params.Maker))
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []models.OrderRecord
	err := q.Order("created_at DESC").Limit(limit).Offset(params.Offset).Find(&out).Error
	return out, err
}

// MarkStaleOrderRecords moves pending journal rows older than the cutoff to
// "abandoned". A pending row that old means the process died mid-submission.
func (r *Repository) MarkStaleOrderRecords(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderRecord{}).
		Where("status = ? AND created_at < ?", "pending", olderThan).
		Updates(map[string]any{
			"status":     "abandoned",
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *Repository) GetProxyWallet(ctx context.Context, ownerAddress string) (*models.ProxyWallet, error) {
	var rec models.ProxyWallet
	err := r.db.WithContext(ctx).
		Where("owner_address = ?", strings.ToLower(ownerAddress)).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) UpsertProxyWallet(ctx context.Context, rec *models.ProxyWallet) error {
	if rec == nil {
		return nil
	}
	rec.OwnerAddress = strings.ToLower(rec.OwnerAddress)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"proxy_address", "deployed", "checked_at", "updated_at",
		}),
	}).Create(rec).Error
}

func (r *Repository) MarkProxyWalletDeployed(ctx context.Context, ownerAddress string) error {
	return r.db.WithContext(ctx).
		Model(&models.ProxyWallet{}).
		Where("owner_address = ?", strings.ToLower(ownerAddress)).
		Updates(map[string]any{
			"deployed":   true,
			"checked_at": time.Now().UTC(),
			"updated_at": time.Now().UTC(),
		}).Error
}
