package fxrate

import (
	"github.com/smallbiznis/classbill/internal/fxrate/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("fxrate",
	fx.Provide(repository.Provide),
)
