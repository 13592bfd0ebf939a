package repository

import (
	"context"
	"time"

	"polytrade/internal/models"
)

type ListOrderRecordsParams struct {
	Limit  int
	Offset int
	Status *string
	Maker  *string
}

// Repository is the persistence boundary for the gateway. Implementations are
// expected to be safe for concurrent use.
type Repository interface {
	InsertOrderRecord(ctx context.Context, rec *models.OrderRecord) error
	UpdateOrderRecordStatus(ctx context.Context, id uint64, status string, fields map[string]any) error
	ListOrderRecords(ctx context.Context, params ListOrderRecordsParams) ([]models.OrderRecord, error)
	MarkStaleOrderRecords(ctx context.Context, olderThan time.Time) (int64, error)

	GetProxyWallet(ctx context.Context, ownerAddress string) (*models.ProxyWallet, error)
	UpsertProxyWallet(ctx context.Context, rec *models.ProxyWallet) error
	MarkProxyWalletDeployed(ctx context.Context, ownerAddress string) error
}
