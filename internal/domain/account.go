package domain

import "time"

// Account 是持久的用户身份，JWT 中的 account_id 指向它。
// 访客账号没有用户名和密码。
type Account struct {
	ID           string  `gorm:"primaryKey;size:36"`
	Username     *string `gorm:"type:varchar(191);uniqueIndex:idx_username"`
	PasswordHash string  `gorm:"type:text"`
	DisplayName  string  `gorm:"size:191"`
	IsGuest      bool
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}
