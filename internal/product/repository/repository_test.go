package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/tracechain/internal/product/domain"
	"github.com/smallbiznis/tracechain/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignBatchKeepsExistingMembership(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Product{}, &domain.AuthorizedUser{}))

	ctx := context.Background()
	r := Provide()
	require.NoError(t, r.Create(ctx, conn, &domain.Product{ID: "p1", Name: "Alpha", SKU: "A-1", CreatedAt: time.Now()}))

	require.NoError(t, r.AssignBatch(ctx, conn, "p1", "b1", 1))
	// same batch is a position update
	require.NoError(t, r.AssignBatch(ctx, conn, "p1", "b1", 3))

	err = r.AssignBatch(ctx, conn, "p1", "b2", 1)
	assert.ErrorIs(t, err, domain.ErrAlreadyBatched)

	got, err := r.FindByID(ctx, conn, "p1")
	require.NoError(t, err)
	require.NotNil(t, got.BatchID)
	assert.Equal(t, "b1", *got.BatchID)
	require.NotNil(t, got.BatchPosition)
	assert.Equal(t, int64(3), *got.BatchPosition)

	assert.ErrorIs(t, r.AssignBatch(ctx, conn, "missing", "b1", 1), domain.ErrAlreadyBatched)

	require.NoError(t, r.ClearBatch(ctx, conn, "p1"))
	require.NoError(t, r.AssignBatch(ctx, conn, "p1", "b2", 1))
}
