package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/corridorlabs/roamsight/internal/alert"
	"github.com/corridorlabs/roamsight/internal/anomaly"
	"github.com/corridorlabs/roamsight/internal/clock"
	"github.com/corridorlabs/roamsight/internal/config"
	"github.com/corridorlabs/roamsight/internal/etl"
	"github.com/corridorlabs/roamsight/internal/migration"
	"github.com/corridorlabs/roamsight/internal/notify"
	"github.com/corridorlabs/roamsight/internal/observability"
	"github.com/corridorlabs/roamsight/internal/quality"
	"github.com/corridorlabs/roamsight/internal/ratelimit"
	"github.com/corridorlabs/roamsight/internal/rowstore"
	"github.com/corridorlabs/roamsight/internal/scheduler"
	"github.com/corridorlabs/roamsight/pkg/db"
	"go.uber.org/fx"
)

// Headless worker running only the backfill and detection loops. Useful
// when the API tier is scaled separately from background processing.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		notify.Module,
		rowstore.Module,
		quality.Module,
		ratelimit.Module,
		etl.Module,
		alert.Module,
		anomaly.Module,

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
