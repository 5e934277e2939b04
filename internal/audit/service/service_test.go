package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tracechain/internal/audit/domain"
	"github.com/smallbiznis/tracechain/internal/audit/repository"
	obscontext "github.com/smallbiznis/tracechain/internal/observability/context"
	"github.com/smallbiznis/tracechain/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) auditdomain.Service {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
}

func TestAuditLogUsesContextActorAndRequest(t *testing.T) {
	svc := newTestService(t)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "user-7", "supplier")
	ctx = obscontext.WithClient(ctx, "10.0.0.1", "curl/8")

	err := svc.AuditLog(ctx, "", auditdomain.ActionAuthorizationDenied, auditdomain.TargetProduct, "p-1",
		map[string]any{"stage": "shipping"})
	require.NoError(t, err)

	logs, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		TargetType: auditdomain.TargetProduct,
		TargetID:   "p-1",
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "user-7", *logs[0].ActorID)
	require.Equal(t, "req-1", logs[0].Metadata["request_id"])
	require.Equal(t, "shipping", logs[0].Metadata["stage"])
	require.Equal(t, "10.0.0.1", *logs[0].IPAddress)
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc := newTestService(t)
	err := svc.AuditLog(context.Background(), "user-1", " ", auditdomain.TargetBatch, "b-1", nil)
	require.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListRequiresTargetType(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.ErrorIs(t, err, auditdomain.ErrInvalidTargetType)
}
