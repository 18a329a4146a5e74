package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Transmission headers sent with every webhook delivery.
const (
	HeaderAuthAlgo         = "PAYPAL-AUTH-ALGO"
	HeaderCertURL          = "PAYPAL-CERT-URL"
	HeaderTransmissionID   = "PAYPAL-TRANSMISSION-ID"
	HeaderTransmissionSig  = "PAYPAL-TRANSMISSION-SIG"
	HeaderTransmissionTime = "PAYPAL-TRANSMISSION-TIME"

	VerificationSuccess = "SUCCESS"
)

// Webhook event types handled by the reconciliation engine.
const (
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventCapturePending   = "PAYMENT.CAPTURE.PENDING"
	EventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	EventCaptureDeclined  = "PAYMENT.CAPTURE.DECLINED"
	EventCaptureRefunded  = "PAYMENT.CAPTURE.REFUNDED"
	EventCaptureReversed  = "PAYMENT.CAPTURE.REVERSED"
)

// WebhookEvent is the envelope of a webhook delivery.
type WebhookEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	CreateTime   string          `json:"create_time"`
	Resource     json.RawMessage `json:"resource"`
}

// CaptureResource is the resource of PAYMENT.CAPTURE.* events. For refund
// and reversal events it describes the refund, which links "up" to the capture.
type CaptureResource struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	Amount            *Money `json:"amount"`
	CustomID          string `json:"custom_id"`
	InvoiceID         string `json:"invoice_id"`
	Links             []Link `json:"links"`
	SupplementaryData *struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

// OrderID returns the related order id, if reported.
func (r *CaptureResource) OrderID() string {
	if r.SupplementaryData == nil {
		return ""
	}
	return r.SupplementaryData.RelatedIDs.OrderID
}

// ParentCaptureID returns the capture id a refund resource belongs to.
func (r *CaptureResource) ParentCaptureID() string {
	for _, l := range r.Links {
		if l.Rel != "up" {
			continue
		}
		if i := strings.Index(l.Href, "/captures/"); i >= 0 {
			id := l.Href[i+len("/captures/"):]
			if j := strings.IndexAny(id, "/?"); j >= 0 {
				id = id[:j]
			}
			return id
		}
	}
	return ""
}

// VerifyRequest is the verify-webhook-signature body.
type VerifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// ErrMissingHeaders is returned when transmission headers are absent.
var ErrMissingHeaders = errors.New("paypal webhook: missing transmission headers")

// NewVerifyRequest builds the verification body from a delivery.
func NewVerifyRequest(header http.Header, body []byte, webhookID string) (*VerifyRequest, error) {
	req := &VerifyRequest{
		AuthAlgo:         header.Get(HeaderAuthAlgo),
		CertURL:          header.Get(HeaderCertURL),
		TransmissionID:   header.Get(HeaderTransmissionID),
		TransmissionSig:  header.Get(HeaderTransmissionSig),
		TransmissionTime: header.Get(HeaderTransmissionTime),
		WebhookID:        webhookID,
		WebhookEvent:     json.RawMessage(body),
	}
	if req.AuthAlgo == "" || req.CertURL == "" || req.TransmissionID == "" ||
		req.TransmissionSig == "" || req.TransmissionTime == "" || req.WebhookID == "" {
		return nil, ErrMissingHeaders
	}
	if !json.Valid(body) {
		return nil, errors.New("paypal webhook: body is not valid JSON")
	}
	return req, nil
}

// VerifyWebhookSignature asks PayPal to verify a delivery. It returns
// true only for an explicit SUCCESS.
func (c *Client) VerifyWebhookSignature(ctx context.Context, req *VerifyRequest) (bool, error) {
	var out verifyResponse
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", req, &out); err != nil {
		return false, err
	}
	return out.VerificationStatus == VerificationSuccess, nil
}
