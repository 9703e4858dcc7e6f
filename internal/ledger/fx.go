package ledger

import (
	"github.com/smallbiznis/classbill/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/classbill/internal/ledger/repository"
	"github.com/smallbiznis/classbill/internal/ledger/service"
	"github.com/smallbiznis/classbill/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(ledgerrepo.Provide),
	fx.Provide(repository.ProvideStore[domain.Transaction]),
	fx.Provide(service.New),
)
