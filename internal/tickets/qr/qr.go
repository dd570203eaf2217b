package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/skip2/go-qrcode"

	"ms-reservation/internal/models"
)

const imageSize = 256

// Payload is what a conductor's scanner recovers from the boarding pass.
type Payload struct {
	BookingID     string      `json:"booking_id"`
	UserID        string      `json:"user_id"`
	VehicleID     string      `json:"vehicle_id"`
	VehicleNumber string      `json:"vehicle_number,omitempty"`
	JourneyDate   models.Date `json:"journey_date"`
	Seats         []string    `json:"seats"`
	IssuedAt      time.Time   `json:"issued_at"`
}

func PayloadFor(b *models.Booking, issuedAt time.Time) Payload {
	p := Payload{
		BookingID:   b.ID,
		UserID:      b.UserID,
		VehicleID:   b.VehicleID,
		JourneyDate: b.JourneyDate,
		Seats:       b.SeatNumbers(),
		IssuedAt:    issuedAt.UTC(),
	}
	if b.Vehicle != nil {
		p.VehicleNumber = b.Vehicle.Number
	}
	return p
}

type QRGenerator struct {
	aead cipher.AEAD
}

func NewQRGenerator(secret string) (*QRGenerator, error) {
	if secret == "" {
		return nil, errors.New("qr secret is empty")
	}
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(hashed[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &QRGenerator{aead: aead}, nil
}

// Seal encrypts and authenticates the payload into a URL-safe token.
func (q *QRGenerator) Seal(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, q.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := q.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (q *QRGenerator) Open(token string) (Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Payload{}, fmt.Errorf("decode ticket token: %w", err)
	}
	n := q.aead.NonceSize()
	if len(raw) < n {
		return Payload{}, errors.New("ticket token too short")
	}
	data, err := q.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return Payload{}, fmt.Errorf("ticket token rejected: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// PNG renders the sealed payload as a QR code image.
func (q *QRGenerator) PNG(p Payload) ([]byte, error) {
	token, err := q.Seal(p)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, imageSize)
}
