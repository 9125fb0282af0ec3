package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/corridorlabs/roamsight/internal/clock"
	"github.com/corridorlabs/roamsight/internal/migration"
	"github.com/corridorlabs/roamsight/internal/observability"
	"github.com/corridorlabs/roamsight/internal/scheduler"
	"github.com/corridorlabs/roamsight/internal/server"
	"github.com/corridorlabs/roamsight/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
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
