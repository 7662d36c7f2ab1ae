package model

import (
	"golang.org/x/crypto/bcrypt"

	apperr "reaper/internal/errors"
)

// User is an account record: username, an optional bcrypt password hash,
// and a permissions bag a future API layer is free to interpret however it
// needs.
type User struct {
	Username     string          `json:"username" validate:"required"`
	PasswordHash string          `json:"-"`
	Permissions  map[string]bool `json:"permissions"`
}

// SetPassword hashes plaintext with bcrypt and stores it on the user.
func (u *User) SetPassword(plaintext string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Wrap("User.SetPassword", err)
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether plaintext matches the stored hash.
func (u *User) CheckPassword(plaintext string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plaintext)) == nil
}

// Validate checks a User against its struct tags.
func (u *User) Validate() error {
	if err := validate.Struct(u); err != nil {
		return apperr.WrapWithMessage("User.Validate", apperr.ErrValidation, err.Error())
	}
	return nil
}
