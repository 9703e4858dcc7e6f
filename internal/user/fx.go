package user

import (
	"github.com/smallbiznis/classbill/internal/user/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("user",
	fx.Provide(repository.Provide),
)
