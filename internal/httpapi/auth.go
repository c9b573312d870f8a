package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cms-go/internal/cms"
)

// SessionCookie is the cookie the login route sets.
const SessionCookie = "session_token"

type authError struct {
	status  int
	message string
}

func (e *authError) Error() string {
	return e.message
}

func unauthenticated(message string) *authError {
	return &authError{status: http.StatusUnauthorized, message: message}
}

// Claims is the payload of a session token.
type Claims struct {
	Email            string `json:"email"`
	Role             string `json:"role"`
	CanDelete        bool   `json:"canDelete"`
	CanEditPublished bool   `json:"canEditPublished"`
	Exp              int64  `json:"exp"`
}

// SignSession issues an HS256 session token for u that expires at exp.
func SignSession(secret []byte, u *cms.User, exp time.Time) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("%w: session secret is empty", cms.ErrNotConfigured)
	}
	header, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(Claims{
		Email:            u.ID(),
		Role:             string(u.Role),
		CanDelete:        u.MayDelete(),
		CanEditPublished: u.MayEditPublished(),
		Exp:              exp.Unix(),
	})
	if err != nil {
		return "", err
	}
	signing := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload)
	return signing + "." + base64.RawURLEncoding.EncodeToString(sign(secret, signing)), nil
}

func sign(secret []byte, signing string) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(signing))
	return mac.Sum(nil)
}

// sessionToken reads the token from the Authorization header, falling back to
// the session cookie.
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, "Bearer ") {
			return ""
		}
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func parseSession(raw string, secret []byte, now time.Time) (Claims, *authError) {
	if raw == "" {
		return Claims{}, unauthenticated("missing session token")
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Claims{}, unauthenticated("invalid jwt format")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Claims{}, unauthenticated("invalid jwt header")
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return Claims{}, unauthenticated("invalid jwt header")
	}
	if header.Alg != "HS256" {
		return Claims{}, unauthenticated("unsupported jwt algorithm")
	}

	sigBytes, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Claims{}, unauthenticated("invalid jwt signature")
	}
	if !hmac.Equal(sigBytes, sign(secret, parts[0]+"."+parts[1])) {
		return Claims{}, unauthenticated("jwt signature mismatch")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, unauthenticated("invalid jwt payload")
	}
	var payload map[string]any
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return Claims{}, unauthenticated("invalid jwt payload")
	}

	email, ok := payload["email"].(string)
	if !ok || email == "" {
		return Claims{}, unauthenticated("missing email claim")
	}
	exp, err := parseExp(payload["exp"])
	if err != nil {
		return Claims{}, unauthenticated("invalid exp claim")
	}
	if now.Unix() >= exp {
		return Claims{}, unauthenticated("token expired")
	}
	role, _ := payload["role"].(string)
	canDelete, _ := payload["canDelete"].(bool)
	canEdit, _ := payload["canEditPublished"].(bool)

	return Claims{
		Email:            email,
		Role:             role,
		CanDelete:        canDelete,
		CanEditPublished: canEdit,
		Exp:              exp,
	}, nil
}

func parseExp(v any) (int64, error) {
	switch typed := v.(type) {
	case float64:
		return int64(typed), nil
	case int64:
		return typed, nil
	case json.Number:
		return typed.Int64()
	default:
		return 0, errors.New("unsupported exp type")
	}
}
