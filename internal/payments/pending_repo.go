package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ErrCheckoutParked reports that the gateway token already has a pending_checkouts row.
var ErrCheckoutParked = errors.New("checkout already parked")

// PendingRepository persists parked redirect checkouts.
type PendingRepository interface {
	WithTx(tx *gorm.DB) PendingRepository
	Create(ctx context.Context, row *models.PendingCheckout) error
	Find(ctx context.Context, gateway enums.PaymentMethod, token string) (*models.PendingCheckout, error)
	Lock(ctx context.Context, gateway enums.PaymentMethod, token string) (*models.PendingCheckout, error)
	MarkCompleted(ctx context.Context, token string, orderID uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, token, reason string) (bool, error)
	MarkCancelled(ctx context.Context, token string) (bool, error)
}

type pendingRepository struct {
	db *gorm.DB
}

func NewPendingRepository(db *gorm.DB) PendingRepository {
	return &pendingRepository{db: db}
}

func (r *pendingRepository) WithTx(tx *gorm.DB) PendingRepository {
	if tx == nil {
		return r
	}
	return &pendingRepository{db: tx}
}

func (r *pendingRepository) Create(ctx context.Context, row *models.PendingCheckout) error {
	err := r.db.WithContext(ctx).Create(row).Error
	if db.IsUniqueViolation(err, "") {
		return ErrCheckoutParked
	}
	return err
}

// Find returns the row or gorm.ErrRecordNotFound.
func (r *pendingRepository) Find(ctx context.Context, gateway enums.PaymentMethod, token string) (*models.PendingCheckout, error) {
	var row models.PendingCheckout
	err := r.db.WithContext(ctx).
		Where("token = ? AND gateway = ?", token, gateway).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Lock reads the row FOR UPDATE; concurrent callbacks for the same token queue here.
func (r *pendingRepository) Lock(ctx context.Context, gateway enums.PaymentMethod, token string) (*models.PendingCheckout, error) {
	var row models.PendingCheckout
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("token = ? AND gateway = ?", token, gateway).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// MarkCompleted records the order for a row that has not settled yet.
func (r *pendingRepository) MarkCompleted(ctx context.Context, token string, orderID uuid.UUID) (bool, error) {
	return r.transition(ctx, token, openStatuses, map[string]any{
		"status":   enums.PendingCheckoutCompleted,
		"order_id": orderID,
	})
}

func (r *pendingRepository) MarkFailed(ctx context.Context, token, reason string) (bool, error) {
	return r.transition(ctx, token, openStatuses, map[string]any{
		"status":         enums.PendingCheckoutFailed,
		"failure_reason": reason,
	})
}

// MarkCancelled only moves pending rows; a late cancel never overrides a settled outcome.
func (r *pendingRepository) MarkCancelled(ctx context.Context, token string) (bool, error) {
	return r.transition(ctx, token, []enums.PendingCheckoutStatus{enums.PendingCheckoutPending}, map[string]any{
		"status": enums.PendingCheckoutCancelled,
	})
}

// openStatuses can still be captured; a cancelled row is honoured if the buyer returns.
var openStatuses = []enums.PendingCheckoutStatus{enums.PendingCheckoutPending, enums.PendingCheckoutCancelled}

func (r *pendingRepository) transition(ctx context.Context, token string, from []enums.PendingCheckoutStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PendingCheckout{}).
		Where("token = ? AND status IN ?", token, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
