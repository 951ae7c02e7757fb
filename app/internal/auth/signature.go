package auth

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/nacl/sign"

	"uptime/app/internal/models"
)

// Validators sign every tick with an ed25519 key in the nacl/sign format.
// Only the 64 byte signature travels with the tick; the message is rebuilt
// from the tick fields by TickMessage.

var (
	ErrBadPublicKey = errors.New("public key must be 32 bytes, base64 or hex encoded")
	ErrBadSignature = errors.New("invalid tick signature")
)

// ParsePublicKey decodes a validator public key
func ParsePublicKey(s string) (*[32]byte, error) {
	raw, err := decodeKey(strings.TrimSpace(s))
	if err != nil || len(raw) != 32 {
		return nil, ErrBadPublicKey
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

func decodeKey(s string) ([]byte, error) {
	if len(s) == 64 {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, ErrBadPublicKey
}

// TickMessage is the canonical byte form of a tick that validators sign
func TickMessage(t models.Tick) []byte {
	return []byte(strings.Join([]string{
		t.ID,
		t.MonitorID,
		t.ValidatorID,
		string(t.Status),
		strconv.Itoa(t.LatencyMs),
		strconv.FormatInt(t.ObservedAt.UnixMilli(), 10),
	}, "|"))
}

// SignTick returns the base64 detached signature of t
func SignTick(priv *[64]byte, t models.Tick) string {
	signed := sign.Sign(nil, TickMessage(t), priv)
	return base64.StdEncoding.EncodeToString(signed[:sign.Overhead])
}

// VerifyTick checks a base64 detached signature of t against the validator key
func VerifyTick(publicKey string, t models.Tick, signature string) error {
	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(sig) != sign.Overhead {
		return fmt.Errorf("%w: malformed signature", ErrBadSignature)
	}

	msg := TickMessage(t)
	signed := make([]byte, 0, len(sig)+len(msg))
	signed = append(append(signed, sig...), msg...)
	if _, ok := sign.Open(nil, signed, key); !ok {
		return ErrBadSignature
	}
	return nil
}
