package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tracechain/internal/clock"
	"github.com/smallbiznis/tracechain/internal/config"
	"github.com/smallbiznis/tracechain/internal/migration"
	"github.com/smallbiznis/tracechain/internal/observability"
	"github.com/smallbiznis/tracechain/internal/server"
	"github.com/smallbiznis/tracechain/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Schema must be in place before the HTTP server starts.
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
