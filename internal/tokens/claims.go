package tokens

import "github.com/golang-jwt/jwt/v5"

const TypeRefresh = "refresh"

type AccessClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Nonce  string `json:"nonce"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
	Nonce     string `json:"nonce"`
	jwt.RegisteredClaims
}
