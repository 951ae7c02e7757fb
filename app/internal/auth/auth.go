package auth

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Operator guards the operator-facing endpoints with a bearer token whose
// bcrypt hash is configured at startup
type Operator struct {
	Hash []byte
}

// NewOperator builds an Operator from a bcrypt hash, or hashes plain when no
// hash is given. With neither the operator endpoints stay open.
func NewOperator(hash, plain string) (*Operator, error) {
	if hash = strings.TrimSpace(hash); hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, errors.New("operator token hash is not a bcrypt hash")
		}
		return &Operator{Hash: []byte(hash)}, nil
	}
	if plain == "" {
		return &Operator{}, nil
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Operator{Hash: h}, nil
}

// Enabled reports whether a token is required
func (o *Operator) Enabled() bool {
	return o != nil && len(o.Hash) > 0
}

// CheckToken verifies a presented token against the configured hash
func (o *Operator) CheckToken(token string) bool {
	if !o.Enabled() || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(o.Hash, []byte(token)) == nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// RequireOperator is middleware that requires the operator token
func (o *Operator) RequireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if o.Enabled() && !o.CheckToken(BearerToken(r)) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
