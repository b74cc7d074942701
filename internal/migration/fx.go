package migration

import (
	auditdomain "github.com/programador11r-tec/zkt-sub000/internal/audit/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/config"
	gatedomain "github.com/programador11r-tec/zkt-sub000/internal/gate/domain"
	ratesdomain "github.com/programador11r-tec/zkt-sub000/internal/rates/domain"
	settlementdomain "github.com/programador11r-tec/zkt-sub000/internal/settlement/domain"
	ticketdomain "github.com/programador11r-tec/zkt-sub000/internal/ticket/domain"
	voucherdomain "github.com/programador11r-tec/zkt-sub000/internal/voucher/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}
		return conn.AutoMigrate(
			&ticketdomain.Ticket{},
			&ticketdomain.PaymentRecord{},
			&voucherdomain.Voucher{},
			&settlementdomain.Invoice{},
			&gatedomain.ManualOpenLog{},
			&ratesdomain.Setting{},
			&auditdomain.AuditLog{},
		)
	}),
)
