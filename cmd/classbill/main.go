package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/classbill/internal/catalog"
	"github.com/smallbiznis/classbill/internal/checkout"
	"github.com/smallbiznis/classbill/internal/clock"
	"github.com/smallbiznis/classbill/internal/config"
	"github.com/smallbiznis/classbill/internal/customerdir"
	"github.com/smallbiznis/classbill/internal/fxrate"
	"github.com/smallbiznis/classbill/internal/gateway/stripegw"
	"github.com/smallbiznis/classbill/internal/ledger"
	"github.com/smallbiznis/classbill/internal/lock"
	"github.com/smallbiznis/classbill/internal/migration"
	"github.com/smallbiznis/classbill/internal/observability"
	"github.com/smallbiznis/classbill/internal/plan"
	"github.com/smallbiznis/classbill/internal/pricing"
	"github.com/smallbiznis/classbill/internal/promotion"
	"github.com/smallbiznis/classbill/internal/ratesync"
	"github.com/smallbiznis/classbill/internal/server"
	"github.com/smallbiznis/classbill/internal/user"
	"github.com/smallbiznis/classbill/internal/webhook"
	"github.com/smallbiznis/classbill/pkg/db"
	"github.com/smallbiznis/classbill/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,
		migration.Module,

		plan.Module,
		promotion.Module,
		fxrate.Module,
		user.Module,
		stripegw.Module,
		pricing.Module,
		catalog.Module,
		customerdir.Module,
		ledger.Module,
		checkout.Module,
		webhook.Module,
		ratesync.Module,

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
