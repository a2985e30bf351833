package memory

import (
	"context"
	"sync"

	"agilekit/internal/domain"
	"agilekit/internal/repository"
)

// AccountRepository 是 repository.AccountRepository 的内存实现
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{accounts: make(map[string]domain.Account)}
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Username != nil && *a.Username == username {
			return &a, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	return &a, nil
}

func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.Username != nil {
		for id, a := range r.accounts {
			if id != account.ID && a.Username != nil && *a.Username == *account.Username {
				return repository.ErrDuplicateEntry
			}
		}
	}
	r.accounts[account.ID] = *account
	return nil
}
