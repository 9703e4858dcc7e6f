package customerdir

import (
	"github.com/smallbiznis/classbill/internal/customerdir/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customerdir.service",
	fx.Provide(service.New),
)
