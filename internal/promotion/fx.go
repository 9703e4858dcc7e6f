package promotion

import (
	"github.com/smallbiznis/classbill/internal/promotion/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("promotion",
	fx.Provide(repository.Provide),
)
