package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// handoffTTL bounds how long a desktop-to-phone handoff stays claimable.
const handoffTTL = 5 * time.Minute

// HandoffService lets a user start verification on desktop and finish the
// capture on their phone: the desktop shows a QR code, the phone scans it and
// claims the session token. Tokens are single-use and expire from Redis.
type HandoffService struct {
	redis *redis.Client
}

func NewHandoffService(redis *redis.Client) *HandoffService {
	return &HandoffService{redis: redis}
}

// CreateHandoff issues a one-time token bound to the session and renders it
// as a QR PNG (base64). Returns the token and the image.
func (s *HandoffService) CreateHandoff(ctx context.Context, sub, sessionID string) (string, string, error) {
	token := s.generateToken()

	payload, err := json.Marshal(map[string]any{
		"session_id": sessionID,
		"sub":        sub,
		"issued_at":  time.Now().Unix(),
	})
	if err != nil {
		return "", "", err
	}

	key := fmt.Sprintf("handoff:%s", token)
	if err := s.redis.Set(ctx, key, payload, handoffTTL).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(token, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return token, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ClaimHandoff redeems a scanned token for the claimant and returns the bound
// session id. Ownership is checked before the token is consumed, so a claim
// from the wrong account leaves it claimable by its owner.
func (s *HandoffService) ClaimHandoff(ctx context.Context, token, sub string) (string, error) {
	key := fmt.Sprintf("handoff:%s", token)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return "", fmt.Errorf("%w: invalid or expired handoff token", ErrNotFound)
	}
	if err != nil {
		return "", err
	}

	var payload struct {
		SessionID string `json:"session_id"`
		Sub       string `json:"sub"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", err
	}
	if payload.Sub != sub {
		return "", ErrForbidden
	}

	s.redis.Del(ctx, key)

	return payload.SessionID, nil
}

func (s *HandoffService) generateToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
