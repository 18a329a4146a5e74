package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/formaai/ledger-api/internal/pkg/logger"
	pkgpayment "github.com/formaai/ledger-api/internal/pkg/payment"
	"github.com/formaai/ledger-api/internal/pkg/storage"
)

const archiveTimeout = 5 * time.Second

// Archiver keeps a copy of every inbound notification.
type Archiver interface {
	Archive(ctx context.Context, provider string, n pkgpayment.Notification, accepted bool)
}

// archivedHeaders are the notification headers worth keeping.
var archivedHeaders = []string{
	"Content-Type",
	"User-Agent",
	"Paypal-Transmission-Id",
	"Paypal-Transmission-Time",
	"Paypal-Transmission-Sig",
	"Paypal-Cert-Url",
	"Paypal-Auth-Algo",
}

type archivedNotification struct {
	Provider   string            `json:"provider"`
	Accepted   bool              `json:"accepted"`
	ReceivedAt time.Time         `json:"received_at"`
	RequestID  string            `json:"request_id"`
	Method     string            `json:"method"`
	Query      string            `json:"query,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// StorageArchive writes notifications as JSON objects to a storage backend.
type StorageArchive struct {
	store storage.Storage
	now   func() time.Time
}

// NewStorageArchive creates an archive on top of store.
func NewStorageArchive(store storage.Storage) *StorageArchive {
	return &StorageArchive{store: store, now: time.Now}
}

// ArchiveKey returns the object key for a notification received at ts.
func ArchiveKey(provider string, ts time.Time, id uuid.UUID, accepted bool) string {
	verdict := "rejected"
	if accepted {
		verdict = "accepted"
	}
	ts = ts.UTC()
	return fmt.Sprintf("webhooks/%s/%s/%d-%s-%s.json", provider, ts.Format("2006/01/02"), ts.UnixMilli(), id, verdict)
}

// Archive never fails the caller; write errors are logged.
func (a *StorageArchive) Archive(ctx context.Context, provider string, n pkgpayment.Notification, accepted bool) {
	received := a.now()
	doc := archivedNotification{
		Provider:   provider,
		Accepted:   accepted,
		ReceivedAt: received.UTC(),
		RequestID:  logger.RequestID(ctx),
		Method:     n.Method,
		Query:      n.Query.Encode(),
		Body:       string(n.Body),
	}
	for _, h := range archivedHeaders {
		if v := n.Header.Get(h); v != "" {
			if doc.Headers == nil {
				doc.Headers = make(map[string]string)
			}
			doc.Headers[h] = v
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("provider", provider).Msg("webhook archive: encode failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	key := ArchiveKey(provider, received, uuid.New(), accepted)
	if err := a.store.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("provider", provider).Str("key", key).Msg("webhook archive: write failed")
	}
}
