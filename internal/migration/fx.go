package migration

import (
	fxratedomain "github.com/smallbiznis/classbill/internal/fxrate/domain"
	ledgerdomain "github.com/smallbiznis/classbill/internal/ledger/domain"
	plandomain "github.com/smallbiznis/classbill/internal/plan/domain"
	promodomain "github.com/smallbiznis/classbill/internal/promotion/domain"
	userdomain "github.com/smallbiznis/classbill/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, log *zap.Logger) error {
		if conn.Dialector.Name() != "postgres" {
			// Non-postgres targets (local sqlite, mysql) take the ORM
			// schema directly instead of the SQL migration set.
			log.Warn("non-postgres database, using auto migration",
				zap.String("dialect", conn.Dialector.Name()))
			return conn.AutoMigrate(
				&plandomain.Plan{},
				&promodomain.Promotion{},
				&fxratedomain.CurrencyRate{},
				&userdomain.User{},
				&ledgerdomain.Transaction{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
