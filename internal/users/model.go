package users

import "time"

// User models a registered account. The password is stored only as a
// bcrypt hash and never leaves this package.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name         string    `gorm:"column:name;size:320;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:190;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// Account is the password-free projection returned to callers.
type Account struct {
	ID    string
	Name  string
	Email string
}

func (u User) account() Account {
	return Account{ID: u.ID, Name: u.Name, Email: u.Email}
}
