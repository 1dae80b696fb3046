package domain

import "time"

// Account represents a registered user.
type Account struct {
	ID           string
	Email        string
	PasswordHash []byte
	Name         string
	CreatedAt    time.Time
}

// PublicUser is the externally visible view of an account.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Public returns the account's external view.
func (a *Account) Public() PublicUser {
	return PublicUser{ID: a.ID, Email: a.Email, Name: a.Name}
}
