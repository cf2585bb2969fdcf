package repo

import (
	"context"

	"gorm.io/gorm"
)

// Guard lists column values a row must still hold for a guarded update to apply.
type Guard map[string]any

// Base is embedded by repositories that may be bound to the root connection
// or to an open transaction.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// GuardedUpdate applies updates to the single row of model matching guard and
// reports whether it changed. False with a nil error means another writer
// moved the row first.
func (b Base) GuardedUpdate(ctx context.Context, model any, guard Guard, updates map[string]any) (bool, error) {
	res := b.DB(ctx).Model(model).Where(map[string]any(guard)).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
