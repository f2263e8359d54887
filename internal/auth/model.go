package auth

import "time"

type Principal struct {
	ID           string       `json:"id"`
	FirstName    string       `json:"firstname"`
	LastName     string       `json:"lastname"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	CreatedAt    time.Time    `json:"createdAt"`
	Lockout      LockoutState `json:"-"`
}

type LoginResult struct {
	Principal    Principal
	AccessToken  string
	RefreshToken string
}
