package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const doctorIDKey contextKey = "doctorID"

// DoctorTokenCookie carries the doctor token for browser requests to the
// dashboard.
const DoctorTokenCookie = "doctor_token"

var errMissingToken = errors.New("missing doctor token")

// DoctorJWT requires an HMAC-signed JWT whose subject is the doctor id.
func DoctorJWT(secret string) func(http.Handler) http.Handler {
	return doctorAuth(secret, true)
}

// OptionalDoctorJWT attaches the doctor id when a valid token is present and
// lets anonymous requests through. A token that is present but invalid is
// still rejected.
func OptionalDoctorJWT(secret string) func(http.Handler) http.Handler {
	return doctorAuth(secret, false)
}

func doctorAuth(secret string, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if errors.Is(err, errMissingToken) && !required {
				next.ServeHTTP(w, r)
				return
			}
			if secret == "" {
				writeAuthError(w, "doctor auth disabled")
				return
			}
			if err != nil {
				writeAuthError(w, "missing authorization header")
				return
			}

			doctorID, err := ParseDoctorToken(secret, tokenString)
			if err != nil {
				writeAuthError(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithDoctorID(r.Context(), doctorID)))
		})
	}
}

// ParseDoctorToken validates the token and returns its subject.
func ParseDoctorToken(secret, tokenString string) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.Subject, nil
}

// SignDoctorToken issues an HS256 token for the doctor, valid for ttl.
func SignDoctorToken(secret, doctorID string, ttl time.Duration) (string, error) {
	if secret == "" || strings.TrimSpace(doctorID) == "" {
		return "", errors.New("middleware: secret and doctor id are required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  doctorID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// WithDoctorID stores the authenticated doctor id on the context.
func WithDoctorID(ctx context.Context, doctorID string) context.Context {
	return context.WithValue(ctx, doctorIDKey, doctorID)
}

// DoctorIDFromContext returns the authenticated doctor id if present.
func DoctorIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(doctorIDKey).(string)
	return id, ok && id != ""
}

func bearerToken(r *http.Request) (string, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if !strings.HasPrefix(auth, "Bearer ") {
			return "", errors.New("malformed authorization header")
		}
		return strings.TrimPrefix(auth, "Bearer "), nil
	}
	if c, err := r.Cookie(DoctorTokenCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", errMissingToken
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
