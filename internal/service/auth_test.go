package service_test // 测试包

import (
	"context"
	"errors"
	"testing"

	"agilekit/internal/domain"
	"agilekit/internal/repository"
	"agilekit/internal/repository/mocks"
	"agilekit/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func strPtr(s string) *string { return &s }

// --- 测试 Register 方法 ---

func TestAuthService_Register_Success(t *testing.T) {
	// Arrange: 准备 Mock 对象, Service 实例, 和测试数据
	mockAccountRepo := new(mocks.AccountRepository)
	authService, err := service.NewAuthService(mockAccountRepo, "very-secret-key", 1)
	require.NoError(t, err, "创建 AuthService 不应失败")

	ctx := context.Background()
	username := "newbie"
	password := "StrongPass123"

	mockAccountRepo.On("FindByUsername", ctx, username).
		Return(nil, repository.ErrAccountNotFound).
		Once()
	mockAccountRepo.On("Save", ctx, mock.MatchedBy(func(a *domain.Account) bool {
		return a.Username != nil && *a.Username == username &&
			!a.IsGuest &&
			bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
	})).
		Return(nil).
		Once()

	// Act
	account, err := authService.Register(ctx, username, password, "Newbie")

	// Assert
	require.NoError(t, err, "成功注册时不应有错误")
	require.NotNil(t, account)
	assert.NotEmpty(t, account.ID, "应分配账号 ID")
	assert.Equal(t, "Newbie", account.DisplayName)
	assert.Empty(t, account.PasswordHash, "返回的账号不应包含密码哈希")
	mockAccountRepo.AssertExpectations(t)
}

func TestAuthService_Register_UsernameTaken(t *testing.T) {
	// Arrange
	mockAccountRepo := new(mocks.AccountRepository)
	authService, _ := service.NewAuthService(mockAccountRepo, "secret", 1)
	ctx := context.Background()
	username := "existingUser"

	existing := &domain.Account{ID: "acc-10", Username: strPtr(username)}
	mockAccountRepo.On("FindByUsername", ctx, username).Return(existing, nil).Once()

	// Act
	_, err := authService.Register(ctx, username, "password123", "")

	// Assert
	require.Error(t, err, "用户名已存在时应返回错误")
	assert.True(t, errors.Is(err, service.ErrRegistrationFailed))
	mockAccountRepo.AssertExpectations(t)
	mockAccountRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestAuthService_Register_SaveFails_DuplicateEntry(t *testing.T) {
	// Arrange
	mockAccountRepo := new(mocks.AccountRepository)
	authService, _ := service.NewAuthService(mockAccountRepo, "secret", 1)
	ctx := context.Background()
	username := "anotherNewUser"

	mockAccountRepo.On("FindByUsername", ctx, username).Return(nil, repository.ErrAccountNotFound).Once()
	mockAccountRepo.On("Save", ctx, mock.AnythingOfType("*domain.Account")).Return(repository.ErrDuplicateEntry).Once()

	// Act
	_, err := authService.Register(ctx, username, "password123", "")

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRegistrationFailed), "保存冲突时应返回 ErrRegistrationFailed")
	mockAccountRepo.AssertExpectations(t)
}

func TestAuthService_Register_ShortPassword(t *testing.T) {
	// Arrange
	mockAccountRepo := new(mocks.AccountRepository)
	authService, _ := service.NewAuthService(mockAccountRepo, "secret", 1)

	// Act
	_, err := authService.Register(context.Background(), "someone", "short", "")

	// Assert
	assert.ErrorIs(t, err, service.ErrInvalidInput)
	mockAccountRepo.AssertNotCalled(t, "FindByUsername", mock.Anything, mock.Anything)
}

// --- 测试 Guest 方法 ---

func TestAuthService_Guest_IssuesTokenWithAccountID(t *testing.T) {
	// Arrange
	mockAccountRepo := new(mocks.AccountRepository)
	authService, _ := service.NewAuthService(mockAccountRepo, "guest-secret", 1)
	ctx := context.Background()
	mockAccountRepo.On("Save", ctx, mock.MatchedBy(func(a *domain.Account) bool {
		return a.IsGuest && a.Username == nil && a.DisplayName == "Visitor"
	})).Return(nil).Once()

	// Act
	result, err := authService.Guest(ctx, "  Visitor ")

	// Assert
	require.NoError(t, err)
	accountID, err := service.ParseAccountToken(result.Token, []byte("guest-secret"))
	require.NoError(t, err)
	assert.Equal(t, result.Account.ID, accountID)
	mockAccountRepo.AssertExpectations(t)
}

// --- 测试 Login 方法 ---

func TestAuthService_Login_Success(t *testing.T) {
	// Arrange
	mockAccountRepo := new(mocks.AccountRepository)
	authService, _ := service.NewAuthService(mockAccountRepo, "test-secret", 24)
	ctx := context.Background()
	username := "testuser"
	password := "password123"
	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	inDB := &domain.Account{ID: "acc-1", Username: strPtr(username), PasswordHash: string(hashedPassword)}

	mockAccountRepo.On("FindByUsername", ctx, username).Return(inDB, nil).Once()

	// Act
	result, err := authService.Login(ctx, username, password)

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	accountID, err := service.ParseAccountToken(result.Token, []byte("test-secret"))
	require.NoError(t, err)
	assert.Equal(t, "acc-1", accountID)
	mockAccountRepo.AssertExpectations(t)
}

func TestAuthService_Login_UserNotFound(t *testing.T) {
	// Arrange
	mockAccountRepo := new(mocks.AccountRepository)
	authService, _ := service.NewAuthService(mockAccountRepo, "test-secret", 24)
	ctx := context.Background()
	username := "nonexistent"

	mockAccountRepo.On("FindByUsername", ctx, username).Return(nil, repository.ErrAccountNotFound).Once()

	// Act
	result, err := authService.Login(ctx, username, "password")

	// Assert
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, service.ErrAuthenticationFailed))
	mockAccountRepo.AssertExpectations(t)
}

func TestAuthService_Login_IncorrectPassword(t *testing.T) {
	// Arrange
	mockAccountRepo := new(mocks.AccountRepository)
	authService, _ := service.NewAuthService(mockAccountRepo, "test-secret", 24)
	ctx := context.Background()
	username := "testuser"
	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	inDB := &domain.Account{ID: "acc-1", Username: strPtr(username), PasswordHash: string(hashedPassword)}

	mockAccountRepo.On("FindByUsername", ctx, username).Return(inDB, nil).Once()

	// Act
	result, err := authService.Login(ctx, username, "wrongpassword")

	// Assert
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, service.ErrAuthenticationFailed))
	mockAccountRepo.AssertExpectations(t)
}

func TestParseAccountToken_RejectsWrongSecret(t *testing.T) {
	// Arrange
	mockAccountRepo := new(mocks.AccountRepository)
	authService, _ := service.NewAuthService(mockAccountRepo, "right-secret", 1)
	mockAccountRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	result, err := authService.Guest(context.Background(), "Eve")
	require.NoError(t, err)

	// Act
	_, err = service.ParseAccountToken(result.Token, []byte("wrong-secret"))

	// Assert
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
}
