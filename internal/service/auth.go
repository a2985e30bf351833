package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agilekit/internal/domain"
	"agilekit/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength     = 8
	maxUsernameLength     = 64
	maxDisplayNameLength  = 64
	defaultJWTExpiryHours = 24
)

// AuthResult 是签发 token 后返回给调用者的信息
type AuthResult struct {
	Token   string          `json:"token"`
	Account *domain.Account `json:"account"`
}

// AuthService 负责账号认证相关的业务逻辑。
type AuthService struct {
	accountRepo repository.AccountRepository
	jwtSecret   []byte        // 存储密钥的字节形式
	jwtExpiry   time.Duration // JWT 过期时间
}

// NewAuthService 创建 AuthService 实例。
// jwtSecretKey 应从安全配置中获取。
// jwtExpiryHours 定义 token 过期的小时数。
func NewAuthService(accountRepo repository.AccountRepository, jwtSecretKey string, jwtExpiryHours int) (*AuthService, error) {
	if accountRepo == nil {
		panic("AccountRepository cannot be nil for AuthService")
	}
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = defaultJWTExpiryHours
	}
	return &AuthService{
		accountRepo: accountRepo,
		jwtSecret:   []byte(jwtSecretKey),
		jwtExpiry:   time.Duration(jwtExpiryHours) * time.Hour,
	}, nil
}

// Guest 创建访客账号并签发 token。访客不需要用户名和密码。
func (s *AuthService) Guest(ctx context.Context, displayName string) (*AuthResult, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || len([]rune(displayName)) > maxDisplayNameLength {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	logCtx := logrus.WithFields(logrus.Fields{"display_name": displayName, "operation": "Guest"})

	account := &domain.Account{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		IsGuest:     true,
	}
	if err := s.accountRepo.Save(ctx, account); err != nil {
		logCtx.WithError(err).Error("Database error during guest account creation")
		return nil, ErrInternalServer
	}
	token, err := s.generateJWT(account.ID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate JWT token for guest")
		return nil, ErrInternalServer
	}
	logCtx.WithField("account_id", account.ID).Info("Guest account created")
	return &AuthResult{Token: token, Account: account}, nil
}

// Register 处理用户注册。
func (s *AuthService) Register(ctx context.Context, username, password, displayName string) (*domain.Account, error) {
	username = strings.TrimSpace(username)
	logCtx := logrus.WithFields(logrus.Fields{"username": username, "operation": "Register"})

	// 1. 基本验证
	if username == "" || len([]rune(username)) > maxUsernameLength {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = username
	}

	// 2. 检查用户名是否已被占用
	existing, err := s.accountRepo.FindByUsername(ctx, username)
	if err == nil && existing != nil {
		logCtx.Warn("Registration failed: Username already exists")
		return nil, ErrRegistrationFailed
	}
	if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		logCtx.WithError(err).Error("Database error while checking username")
		return nil, ErrInternalServer
	}

	// 3. 哈希密码
	hashedPassword, err := hashPassword(password)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash password during registration")
		return nil, ErrInternalServer
	}

	// 4. 保存账号
	account := &domain.Account{
		ID:           uuid.NewString(),
		Username:     &username,
		PasswordHash: hashedPassword,
		DisplayName:  displayName,
	}
	if err := s.accountRepo.Save(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithError(err).Warn("Registration failed: Username already exists (repo error)")
			return nil, ErrRegistrationFailed
		}
		logCtx.WithError(err).Error("Database error during account creation")
		return nil, ErrInternalServer
	}

	logCtx.WithField("account_id", account.ID).Info("Account registered successfully")
	account.PasswordHash = "" // 清除密码哈希再返回
	return account, nil
}

// Login 处理用户登录。
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"username": username, "operation": "Login"})

	// 1. 查找账号
	account, err := s.accountRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			logCtx.WithError(err).Warn("Login attempt failed: Account not found")
		} else {
			logCtx.WithError(err).Warn("Login attempt failed: Error finding account")
		}
		return nil, ErrAuthenticationFailed // 对客户端统一返回认证失败
	}
	if account == nil || account.IsGuest {
		logCtx.Warn("Login attempt failed: Account cannot log in with a password")
		return nil, ErrAuthenticationFailed
	}

	// 2. 验证密码
	if !checkPassword(password, account.PasswordHash) {
		logCtx.Warn("Login attempt failed: Invalid password")
		return nil, ErrAuthenticationFailed
	}

	// 3. 生成 JWT Token
	token, err := s.generateJWT(account.ID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate JWT token during login")
		return nil, ErrInternalServer
	}

	logCtx.WithField("account_id", account.ID).Info("Account logged in successfully")
	account.PasswordHash = ""
	return &AuthResult{Token: token, Account: account}, nil
}

// ParseAccountToken 校验 HS256 签名的 token 并取出 account_id。中间件和 WebSocket 握手共用。
func ParseAccountToken(tokenString string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		logrus.WithError(err).Debug("JWT validation failed")
		return "", ErrAuthenticationFailed
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrAuthenticationFailed
	}
	accountID, ok := claims["account_id"].(string)
	if !ok || accountID == "" {
		return "", ErrAuthenticationFailed
	}
	return accountID, nil
}

// --- 私有辅助函数 ---

// hashPassword 使用 bcrypt 对密码进行哈希处理
func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to generate hash from password: %w", err)
	}
	return string(bytes), nil
}

// checkPassword 验证提供的密码是否与存储的哈希匹配
func checkPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// generateJWT 为指定账号 ID 生成 JWT Token
func (s *AuthService) generateJWT(accountID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account_id": accountID,
		"exp":        now.Add(s.jwtExpiry).Unix(),
		"iat":        now.Unix(),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
