package handlers

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/dto"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthHandler issues and validates the JWT that guards the admin
// surface. Credentials come from the environment: ADMIN_PASSWORD_HASH is
// a bcrypt hash, ADMIN_TOTP_SECRET a TOTP seed.
type AdminAuthHandler struct {
	jwtSecret  []byte
	totpSecret string
}

// AdminJWTClaims are the claims carried by an admin session token.
type AdminJWTClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewAdminAuthHandler creates the handler, reading secrets from the
// environment.
func NewAdminAuthHandler() *AdminAuthHandler {
	totpSecret := os.Getenv("ADMIN_TOTP_SECRET")
	passwordHash := os.Getenv("ADMIN_PASSWORD_HASH")
	if totpSecret == "" || passwordHash == "" {
		logrus.Warn("ADMIN_TOTP_SECRET or ADMIN_PASSWORD_HASH not set, admin login will be rejected")
	}

	return &AdminAuthHandler{
		jwtSecret:  adminJWTSecret(),
		totpSecret: totpSecret,
	}
}

// AdminLoginHandler checks username, bcrypt password hash and TOTP code,
// then issues a 24h JWT.
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	passwordHash := os.Getenv("ADMIN_PASSWORD_HASH")
	if h.totpSecret == "" || passwordHash == "" {
		c.JSON(http.StatusInternalServerError, dto.AdminLoginResponse{
			Success: false,
			Message: "Server misconfiguration: admin credentials not set",
		})
		return
	}

	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AdminLoginResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	expectedUsername := os.Getenv("ADMIN_USERNAME")
	if expectedUsername == "" {
		expectedUsername = "admin"
	}

	// Generic message for every credential failure.
	if req.Username != expectedUsername {
		c.JSON(http.StatusUnauthorized, dto.AdminLoginResponse{
			Success: false,
			Message: "Invalid credentials",
		})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, dto.AdminLoginResponse{
			Success: false,
			Message: "Invalid credentials",
		})
		return
	}

	if !totp.Validate(req.TOTPCode, h.totpSecret) {
		c.JSON(http.StatusUnauthorized, dto.AdminLoginResponse{
			Success: false,
			Message: "Invalid TOTP code",
		})
		return
	}

	token, err := h.generateAdminJWTToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.AdminLoginResponse{
			Success: false,
			Message: "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, dto.AdminLoginResponse{
		Success: true,
		Token:   token,
		Message: "Login successful",
	})
}

// TOTPSetupHandler bootstraps a TOTP secret when none is configured.
// It sits behind the IP whitelist but not the JWT middleware, since the
// JWT cannot be issued before a second factor exists. Once
// ADMIN_TOTP_SECRET is set the endpoint refuses to mint another secret.
func (h *AdminAuthHandler) TOTPSetupHandler(c *gin.Context) {
	if h.totpSecret != "" {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error":   "TOTP secret already configured",
		})
		return
	}

	accountName := os.Getenv("ADMIN_USERNAME")
	if accountName == "" {
		accountName = "admin"
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Object Sync Admin",
		AccountName: accountName,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to generate TOTP secret",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"secret":           key.Secret(),
			"provisioning_url": key.URL(),
			"note":             "Set ADMIN_TOTP_SECRET to this secret and restart the server",
		},
	})
}

func (h *AdminAuthHandler) generateAdminJWTToken(username string) (string, error) {
	claims := AdminJWTClaims{
		Username: username,
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "object-sync-admin",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(h.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateAdminJWTToken parses and validates an admin session token.
func ValidateAdminJWTToken(tokenString string) (*AdminJWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminJWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return adminJWTSecret(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*AdminJWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func adminJWTSecret() []byte {
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		return []byte(secret)
	}
	logrus.Warn("Using default ADMIN_JWT_SECRET, set the environment variable in production")
	return []byte("object-sync-admin-jwt-secret-change-me")
}
