package alert

import (
	"github.com/corridorlabs/roamsight/internal/alert/repository"
	"github.com/corridorlabs/roamsight/internal/alert/service"
	"go.uber.org/fx"
)

var Module = fx.Module("alert.service",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
