package models

import (
	"time"

	"github.com/dgrijalva/jwt-go"
)

// User is a dashboard account.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash []byte    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Claims represents the JWT claims.
type Claims struct {
	UserID int64  `json:"uid"`
	Email  string `json:"email"`
	jwt.StandardClaims
}
