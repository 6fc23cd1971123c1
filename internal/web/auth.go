package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmhodges/clock"
	"github.com/pkg/errors"
)

// CronSubject is the subject of tokens accepted by the job endpoints.
const CronSubject = "scheduler"

// NewCronToken mints a bearer token for an external scheduler.
func NewCronToken(secret string, now time.Time, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("cron secret is empty")
	}
	claims := jwt.RegisteredClaims{
		Subject:   CronSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "sign cron token")
	}
	return signed, nil
}

// requireCronToken rejects the request with 401 unless it carries a valid
// scheduler token. Nothing runs for a rejected request.
func requireCronToken(secret []byte, clk clock.Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" || len(secret) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithSubject(CronSubject),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clk.Now),
		)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
