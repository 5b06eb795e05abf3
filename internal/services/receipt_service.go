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
	"github.com/ispdesk/backend/internal/database"
	"github.com/ispdesk/backend/internal/models"
	"github.com/skip2/go-qrcode"
)

const receiptTTL = 90 * 24 * time.Hour

// ReceiptService renders QR receipts for settled entries. When Redis is
// available each receipt carries a token that VerifyReceipt resolves back to
// the entry.
type ReceiptService struct {
	store database.Reader
	redis *redis.Client
}

type receiptPayload struct {
	EntryID       string `json:"id"`
	Kind          string `json:"type"`
	Amount        string `json:"amount"`
	CorrelationID string `json:"ref"`
	CreatedAt     int64  `json:"ts"`
	Token         string `json:"token,omitempty"`
}

func NewReceiptService(store database.Reader, redis *redis.Client) *ReceiptService {
	return &ReceiptService{
		store: store,
		redis: redis,
	}
}

// ReceiptQR returns a PNG QR code describing a settled entry.
func (s *ReceiptService) ReceiptQR(ctx context.Context, entryID string, size int) ([]byte, error) {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, storeErr(err, "ledger entry "+entryID)
	}
	if entry.Status != models.StatusSettled {
		return nil, fmt.Errorf("entry %s is %s: %w", entryID, entry.Status, ErrNotSettled)
	}

	payload := receiptPayload{
		EntryID:       entry.ID,
		Kind:          string(entry.Kind),
		Amount:        entry.Amount.StringFixed(2),
		CorrelationID: entry.CorrelationID,
		CreatedAt:     entry.CreatedAt.Unix(),
	}
	if s.redis != nil {
		payload.Token = s.generateToken()
		key := fmt.Sprintf("receipt:%s", payload.Token)
		if err := s.redis.Set(ctx, key, entry.ID, receiptTTL).Err(); err != nil {
			return nil, err
		}
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	qr, err := qrcode.New(string(jsonData), qrcode.Medium)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// VerifyReceipt resolves a scanned receipt token to its entry.
func (s *ReceiptService) VerifyReceipt(ctx context.Context, token string) (*models.LedgerEntry, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("receipt verification is not configured: %w", ErrNotFound)
	}
	key := fmt.Sprintf("receipt:%s", token)

	entryID, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired receipt: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, storeErr(err, "ledger entry "+entryID)
	}
	return entry, nil
}

func (s *ReceiptService) generateToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
