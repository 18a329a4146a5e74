package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnresolvable means neither correlation channel names a valid
// {userId, packId, credits} triple.
var ErrUnresolvable = errors.New("correlation data cannot be resolved")

// CorrelationSource records which channel resolved an order.
type CorrelationSource string

const (
	SourcePayload   CorrelationSource = "payload"
	SourceReference CorrelationSource = "reference"
	SourceManual    CorrelationSource = "manual"
)

// Correlation routes a settled payment to a credit grant.
type Correlation struct {
	UserID  string
	PackID  string
	Credits int64
	Source  CorrelationSource
}

const sigBytes = 12

type wirePayload struct {
	UserID  string `json:"u"`
	PackID  string `json:"p"`
	Credits int64  `json:"c"`
	Sig     string `json:"s"`
}

// Correlator encodes and resolves correlation data.
type Correlator struct {
	secret  []byte
	catalog *Catalog
	now     func() time.Time
}

// NewCorrelator creates a correlator signing payloads with secret.
func NewCorrelator(secret string, catalog *Catalog) *Correlator {
	return &Correlator{secret: []byte(secret), catalog: catalog, now: time.Now}
}

func (c *Correlator) sign(userID, packID string, credits int64) string {
	mac := hmac.New(sha256.New, c.secret)
	fmt.Fprintf(mac, "%s|%s|%d", userID, packID, credits)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:sigBytes])
}

// Encode returns the signed structured payload.
func (c *Correlator) Encode(userID, packID string, credits int64) string {
	b, _ := json.Marshal(wirePayload{
		UserID:  userID,
		PackID:  packID,
		Credits: credits,
		Sig:     c.sign(userID, packID, credits),
	})
	return string(b)
}

// Reference returns the userId_packId_timestamp fallback string.
func (c *Correlator) Reference(userID, packID string) string {
	return fmt.Sprintf("%s_%s_%d", userID, packID, c.now().UnixMilli())
}

// Decode verifies and parses a structured payload.
func (c *Correlator) Decode(payload string) (*Correlation, error) {
	var w wirePayload
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrUnresolvable, err)
	}
	if w.UserID == "" || w.PackID == "" || w.Credits <= 0 {
		return nil, fmt.Errorf("%w: payload incomplete", ErrUnresolvable)
	}
	if !hmac.Equal([]byte(w.Sig), []byte(c.sign(w.UserID, w.PackID, w.Credits))) {
		return nil, fmt.Errorf("%w: payload signature mismatch", ErrUnresolvable)
	}
	return &Correlation{UserID: w.UserID, PackID: w.PackID, Credits: w.Credits, Source: SourcePayload}, nil
}

// ParseReference parses the fallback string, taking credits from the catalog.
func (c *Correlator) ParseReference(ref string) (*Correlation, error) {
	parts := strings.Split(ref, "_")
	if len(parts) != 3 || parts[0] == "" {
		return nil, fmt.Errorf("%w: reference %q", ErrUnresolvable, ref)
	}
	if _, err := strconv.ParseInt(parts[2], 10, 64); err != nil {
		return nil, fmt.Errorf("%w: reference timestamp %q", ErrUnresolvable, parts[2])
	}
	pack, err := c.catalog.Get(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	return &Correlation{UserID: parts[0], PackID: pack.ID, Credits: pack.Credits, Source: SourceReference}, nil
}

// Resolve prefers the structured payload and falls back to the reference.
func (c *Correlator) Resolve(payload, reference string) (*Correlation, error) {
	var payloadErr error
	if payload != "" {
		corr, err := c.Decode(payload)
		if err == nil {
			return corr, nil
		}
		payloadErr = err
	}
	if reference != "" {
		return c.ParseReference(reference)
	}
	if payloadErr != nil {
		return nil, payloadErr
	}
	return nil, fmt.Errorf("%w: no correlation data", ErrUnresolvable)
}
