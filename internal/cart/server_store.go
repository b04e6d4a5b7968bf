package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServerStore keeps authenticated carts in cart_lines. Mutations lock the owner's
// carts row so concurrent requests for one user serialize.
type ServerStore struct {
	db *gorm.DB
	tx txRunner
}

func NewServerStore(db *gorm.DB, tx txRunner) (*ServerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	return &ServerStore{db: db, tx: tx}, nil
}

func (s *ServerStore) Load(ctx context.Context, owner Owner) (*Cart, error) {
	if !owner.Authenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "server cart requires a user")
	}
	lines, err := loadLines(s.db.WithContext(ctx), owner.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return &Cart{Lines: lines}, nil
}

func (s *ServerStore) Mutate(ctx context.Context, owner Owner, fn func(*Lines) error) (*Cart, error) {
	if !owner.Authenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "server cart requires a user")
	}
	var out Lines
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := lockCart(tx, owner.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock cart")
		}
		before, err := loadLines(tx, owner.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
		}
		after := before.Clone()
		if err := fn(&after); err != nil {
			return err
		}
		if err := persistDiff(tx, owner.UserID, before, after); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart")
		}
		out, err = loadLines(tx, owner.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Cart{Lines: out}, nil
}

func (s *ServerStore) Clear(ctx context.Context, owner Owner) (*Cart, error) {
	if !owner.Authenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "server cart requires a user")
	}
	if err := ClearLines(s.db.WithContext(ctx), owner.UserID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	return &Cart{}, nil
}

// ClearLines deletes every line of a user's cart using db, which may be a transaction.
func ClearLines(db *gorm.DB, userID uuid.UUID) error {
	return db.Where("user_id = ?", userID).Delete(&models.CartLine{}).Error
}

func lockCart(tx *gorm.DB, userID uuid.UUID) error {
	header := models.Cart{UserID: userID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&header).Error; err != nil {
		return err
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Take(&header).Error
}

func loadLines(db *gorm.DB, userID uuid.UUID) (Lines, error) {
	var rows []models.CartLine
	if err := db.Where("user_id = ?", userID).Order("id ASC").Find(&rows).Error; err != nil {
		return Lines{}, err
	}
	lines := Lines{Items: make([]Line, 0, len(rows))}
	for _, row := range rows {
		lines.Items = append(lines.Items, Line{
			ID:        row.ID,
			ProductID: row.ProductID,
			VariantID: row.VariantID,
			Quantity:  row.Quantity,
		})
		if row.ID > lines.NextID {
			lines.NextID = row.ID
		}
	}
	return lines, nil
}

// persistDiff writes only what changed. Deletes run first so a reassigned line can
// take a key freed by a removed one without tripping the owner key index.
func persistDiff(tx *gorm.DB, userID uuid.UUID, before, after Lines) error {
	kept := make(map[int64]Line, len(after.Items))
	for _, line := range after.Items {
		kept[line.ID] = line
	}
	existing := make(map[int64]Line, len(before.Items))
	for _, line := range before.Items {
		existing[line.ID] = line
		if _, ok := kept[line.ID]; ok {
			continue
		}
		if err := tx.Where("id = ? AND user_id = ?", line.ID, userID).Delete(&models.CartLine{}).Error; err != nil {
			return err
		}
	}
	for _, line := range after.Items {
		prev, ok := existing[line.ID]
		if !ok {
			continue
		}
		if prev.Quantity == line.Quantity && sameVariant(prev.VariantID, line.VariantID) {
			continue
		}
		if err := tx.Model(&models.CartLine{}).
			Where("id = ? AND user_id = ?", line.ID, userID).
			Updates(map[string]any{"variant_id": line.VariantID, "quantity": line.Quantity}).Error; err != nil {
			return err
		}
	}
	for _, line := range after.Items {
		if _, ok := existing[line.ID]; ok {
			continue
		}
		row := models.CartLine{
			UserID:    userID,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}
