package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"agilekit/internal/domain"
	"agilekit/internal/repository"
)

// GormAccountRepository 是 AccountRepository 接口的 GORM 实现
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository 创建 GormAccountRepository 实例
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	if db == nil {
		panic("database connection cannot be nil for GormAccountRepository")
	}
	return &GormAccountRepository{db: db}
}

// FindByUsername 实现根据用户名查找账号
func (r *GormAccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrAccountNotFound
		}
		return nil, fmt.Errorf("gorm: find account by username '%s': %w", username, err)
	}
	return &account, nil
}

// FindByID 实现根据账号 ID 查找账号
func (r *GormAccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrAccountNotFound
		}
		return nil, fmt.Errorf("gorm: find account by id %s: %w", id, err)
	}
	return &account, nil
}

// Save 实现保存账号 (创建或更新)。主键由调用方生成，Save 对已存在的主键执行 UPDATE。
func (r *GormAccountRepository) Save(ctx context.Context, account *domain.Account) error {
	err := r.db.WithContext(ctx).Save(account).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save account (id: %s): %w", account.ID, err)
	}
	return nil
}
