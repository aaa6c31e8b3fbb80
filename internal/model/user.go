package model

import "time"

// User stores account metadata. Authentication itself lives outside this
// service; IsPremium gates the daily decomposition quota and TelegramChatID
// is where daily reports are pushed when set.
type User struct {
	ID             uint   `gorm:"primaryKey"`
	Email          string `gorm:"uniqueIndex"`
	Name           string
	PasswordHash   string
	IsVerified     bool  `gorm:"default:false"`
	IsPremium      bool  `gorm:"default:false"`
	TelegramChatID int64 `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
