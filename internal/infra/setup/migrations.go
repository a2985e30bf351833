package setup

import (
	"fmt"

	"agilekit/internal/domain"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// models 是需要迁移的表，顺序即创建顺序
var models = []interface{}{
	&domain.Account{},
	&domain.Room{},
	&domain.Membership{},
	&domain.Vote{},
	&domain.Issue{},
}

// MigrateDB 使用 AutoMigrate 创建或更新所有表和索引。
// 返回错误以便调用者知道迁移是否成功。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}
	for _, model := range models {
		if err := db.AutoMigrate(model); err != nil {
			logrus.Errorf("Failed to auto-migrate %T: %v", model, err)
			return fmt.Errorf("failed to auto-migrate %T: %w", model, err)
		}
	}
	logrus.Info("Database migration completed successfully")
	return nil
}
