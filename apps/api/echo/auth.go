package echoapi

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/attenx/attenx/core"
	"github.com/attenx/attenx/core/anomaly"
)

var contextTokenKey = "reviewerToken"

// newAppJWTConfig returns the JWT auth middleware config.
func newAppJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// Reviewer resolves the claims into the acting reviewer identity.
func (c Claims) Reviewer() anomaly.Reviewer {
	id, _ := strconv.Atoi(c.Subject)
	name := c.Name
	if name == "" {
		name = c.Email
	}
	return anomaly.Reviewer{ID: id, Name: name}
}

// GetReviewerClaims builds the claims for an authenticated reviewer.
func GetReviewerClaims(conf *core.Config, rev anomaly.Reviewer, email string, isAdmin bool) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   strconv.Itoa(rev.ID),
			Audience:  "AttenX",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:    rev.Name,
		Email:   email,
		IsAdmin: isAdmin,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(middleware.AlgorithmHS256)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// contextReviewer returns the authenticated reviewer or errUnauthorized.
func contextReviewer(ctx echo.Context) (anomaly.Reviewer, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return anomaly.Reviewer{}, err
	}
	return claims.Reviewer(), nil
}
