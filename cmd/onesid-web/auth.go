package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/MDR-Advocacia/OneSid/internal/storage"
	"github.com/golang-jwt/jwt/v5"
)

const sessionCookie = "onesid_session"

// sessionClaims is the JWT payload stored in the session cookie.
type sessionClaims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// auth issues and validates session tokens.
type auth struct {
	secret       []byte
	sessionHours int
}

func newAuth(cfg *storage.Config) *auth {
	return &auth{
		secret:       []byte(cfg.Server.JWTSecret),
		sessionHours: cfg.Server.SessionHours,
	}
}

func (a *auth) issue(userID int64, username, role string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(a.sessionHours) * time.Hour)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *auth) parse(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (a *auth) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   a.sessionHours * 3600,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func (a *auth) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

// session returns the claims for an authenticated request, or nil.
func (a *auth) session(r *http.Request) *sessionClaims {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	claims, err := a.parse(c.Value)
	if err != nil {
		return nil
	}
	return claims
}
