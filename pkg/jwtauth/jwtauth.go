// Package jwtauth verifies bearer JWTs on the broker's own HTTP surface,
// classifying every failure under a stable error code so clients can react
// programmatically. Claim verification runs through golang-jwt/jwt/v5.
package jwtauth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Code is one of the eight bearer-auth failure codes surfaced in 401 bodies.
type Code string

const (
	MissingAuthHeader      Code = "MISSING_AUTH_HEADER"
	InvalidAuthScheme      Code = "INVALID_AUTH_SCHEME"
	MissingToken           Code = "MISSING_TOKEN"
	TokenExpired           Code = "TOKEN_EXPIRED"
	TokenInvalid           Code = "TOKEN_INVALID"
	IssuerMismatch         Code = "ISSUER_MISMATCH"
	AudienceMismatch       Code = "AUDIENCE_MISMATCH"
	TokenVerificationFailed Code = "TOKEN_VERIFICATION_FAILED"
)

// VerifyError pairs a failure Code with the 401 the HTTP layer must
// return.
type VerifyError struct {
	Code    Code
	Message string
}

func (e *VerifyError) Error() string { return string(e.Code) + ": " + e.Message }

func fail(code Code, msg string) *VerifyError { return &VerifyError{Code: code, Message: msg} }

// Verifier checks the Authorization header of an inbound request against
// a symmetric secret plus optional issuer/audience constraints.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

// New builds a Verifier. issuer/audience, if non-empty, are enforced as
// exact-match claims; an empty secret disables verification entirely
// (every request passes).
func New(secret, issuer, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Enabled reports whether this verifier actually checks anything.
func (v *Verifier) Enabled() bool { return len(v.secret) > 0 }

// Verify extracts and validates the bearer token from r, returning the
// parsed claims on success or a typed VerifyError naming which check
// failed.
func (v *Verifier) Verify(r *http.Request) (jwt.MapClaims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, fail(MissingAuthHeader, "missing Authorization header")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, fail(InvalidAuthScheme, "expected Bearer scheme")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" {
		return nil, fail(MissingToken, "empty bearer token")
	}
	return v.VerifyToken(raw)
}

// VerifyToken validates a raw token string directly, for transports that
// carry the JWT outside an Authorization header, like the SSE stream's
// ?token=... query parameter.
func (v *Verifier) VerifyToken(raw string) (jwt.MapClaims, error) {
	if raw == "" {
		return nil, fail(MissingToken, "empty bearer token")
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "token is expired"):
			return nil, fail(TokenExpired, err.Error())
		case strings.Contains(err.Error(), "signature is invalid"):
			return nil, fail(TokenInvalid, err.Error())
		default:
			return nil, fail(TokenVerificationFailed, err.Error())
		}
	}
	if !token.Valid {
		return nil, fail(TokenInvalid, "token failed validation")
	}

	if v.issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != v.issuer {
			return nil, fail(IssuerMismatch, "issuer does not match")
		}
	}
	if v.audience != "" {
		aud, _ := claims.GetAudience()
		if !containsString(aud, v.audience) {
			return nil, fail(AudienceMismatch, "audience does not match")
		}
	}

	return claims, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Middleware wraps next with bearer verification. Requests to path skip
// (e.g. /health) bypass the check entirely, mirroring authMiddleware's
// health/ready bypass. A verification failure is written as 401 with a
// JSON {error, code} body by onFail.
func Middleware(v *Verifier, skip func(*http.Request) bool, onFail func(http.ResponseWriter, *http.Request, *VerifyError), next http.Handler) http.Handler {
	if v == nil || !v.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skip != nil && skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := v.Verify(r); err != nil {
			verr, ok := err.(*VerifyError)
			if !ok {
				verr = fail(TokenVerificationFailed, err.Error())
			}
			onFail(w, r, verr)
			return
		}
		next.ServeHTTP(w, r)
	})
}
