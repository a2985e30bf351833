package repository

import (
	"context"

	"agilekit/internal/domain"
)

// AccountRepository 定义了账号数据的存储和检索操作。
type AccountRepository interface {
	// FindByUsername 根据用户名查找账号，不存在时返回 ErrAccountNotFound。
	FindByUsername(ctx context.Context, username string) (*domain.Account, error)

	// FindByID 根据账号 ID 查找账号。
	FindByID(ctx context.Context, id string) (*domain.Account, error)

	// Save 保存账号，用户名冲突时返回 ErrDuplicateEntry。
	Save(ctx context.Context, account *domain.Account) error
}
