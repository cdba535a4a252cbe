package domain

import "time"

// AccessClaims represents the identity claims carried by an access token.
type AccessClaims struct {
	UserID   int64   `json:"id"`
	Name     string  `json:"name"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	Phone    *string `json:"phone"`
	Exp      int64   `json:"exp"`
	Iat      int64   `json:"iat"`
}

// IsExpired checks if the token is expired.
func (c AccessClaims) IsExpired() bool {
	return time.Now().Unix() > c.Exp
}
