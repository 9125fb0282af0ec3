package etl

import (
	"github.com/corridorlabs/roamsight/internal/etl/repository"
	"github.com/corridorlabs/roamsight/internal/etl/service"
	"go.uber.org/fx"
)

var Module = fx.Module("etl.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
