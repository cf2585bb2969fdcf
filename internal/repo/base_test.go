package repo

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type ticket struct {
	ID     string `gorm:"primaryKey"`
	Status string
	Note   string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`CREATE TABLE tickets (id TEXT PRIMARY KEY, status TEXT NOT NULL, note TEXT)`).Error)
	return conn
}

func TestBaseDBBindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	withCtx := base.DB(ctx)
	require.NotNil(t, withCtx.Statement)
	require.Equal(t, ctx, withCtx.Statement.Context)

	require.Same(t, db, base.DB(nil))
}

func TestGuardedUpdateAppliesOnlyWhileGuardHolds(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.Create(&ticket{ID: "t1", Status: "PENDING"}).Error)
	base := NewBase(db)

	applied, err := base.GuardedUpdate(ctx, &ticket{}, Guard{"id": "t1", "status": "PENDING"}, map[string]any{"status": "APPROVED", "note": "first"})
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = base.GuardedUpdate(ctx, &ticket{}, Guard{"id": "t1", "status": "PENDING"}, map[string]any{"status": "REJECTED", "note": "second"})
	require.NoError(t, err)
	require.False(t, applied, "stale guard must not apply")

	var row ticket
	require.NoError(t, db.First(&row, "id = ?", "t1").Error)
	require.Equal(t, "APPROVED", row.Status)
	require.Equal(t, "first", row.Note)
}

func TestGuardedUpdateMissingRow(t *testing.T) {
	base := NewBase(newTestDB(t))
	applied, err := base.GuardedUpdate(context.Background(), &ticket{}, Guard{"id": "nope"}, map[string]any{"status": "X"})
	require.NoError(t, err)
	require.False(t, applied)
}
