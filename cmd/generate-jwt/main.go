package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminJWTClaims mirrors the claims issued by the admin login endpoint.
type AdminJWTClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Generates an admin JWT for local testing, signed with the same secret
// the server uses.
func main() {
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		secret = "object-sync-admin-jwt-secret-change-me"
	}
	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin"
	}

	now := time.Now()
	claims := AdminJWTClaims{
		Username: username,
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "object-sync-admin",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Admin JWT Token:")
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Printf("Username: %s\n", username)
	fmt.Printf("Expires:  %s\n", now.Add(24*time.Hour).Format(time.RFC3339))
	fmt.Println()
	fmt.Println("Usage: curl -H \"Authorization: Bearer <token>\" http://localhost:8080/admin/fieldmaps")
}
