package models

// Role enumerates user roles.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleCollector Role = "collector"
)

// User owns every other entity through OwnerID / AddedBy.
type User struct {
	ID           string `gorm:"primaryKey;size:36" json:"id" validate:"required"`
	Name         string `gorm:"not null" json:"name" validate:"required,max=120"`
	Phone        string `json:"phone" validate:"omitempty,max=32"`
	PasswordHash string `gorm:"column:password_hash" json:"-"`
	Role         Role   `gorm:"size:16;not null" json:"role" validate:"required,oneof=owner collector"`

	SyncMeta
}

// BusinessKey identifies a user across stores.
func (u User) BusinessKey() string { return u.ID }

// Identity is the remote document id.
func (u User) Identity() string { return u.ID }
