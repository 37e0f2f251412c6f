// Package whatsapp is the WhatsApp Cloud API channel: an outbound client for
// the Graph API and the inbound webhook module that feeds the conversation
// manager.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatlead_backend/platform/config"
	"chatlead_backend/platform/logger"
	"chatlead_backend/platform/phone"
)

// Client sends messages through the WhatsApp Cloud API.
type Client struct {
	graphURL      string
	phoneNumberID string
	accessToken   string
	http          *http.Client
	log           *logger.Logger
}

// NewClient builds the outbound client. Returns nil when the channel is not
// configured; a nil client silently drops sends.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	if !cfg.IsWhatsAppEnabled() {
		return nil
	}

	return &Client{
		graphURL:      strings.TrimRight(cfg.GetWhatsAppGraphURL(), "/"),
		phoneNumberID: cfg.GetWhatsAppPhoneNumberID(),
		accessToken:   cfg.GetWhatsAppAccessToken(),
		http:          &http.Client{Timeout: 10 * time.Second},
		log:           log,
	}
}

type textPayload struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type imagePayload struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Image            struct {
		Link    string `json:"link"`
		Caption string `json:"caption,omitempty"`
	} `json:"image"`
}

// SendText delivers a text message to the user.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if c == nil {
		return nil
	}

	payload := textPayload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               recipient(to),
		Type:             "text",
	}
	payload.Text.Body = body

	return c.post(ctx, payload)
}

// SendImage delivers an image by URL, with an optional caption.
func (c *Client) SendImage(ctx context.Context, to, imageURL, caption string) error {
	if c == nil {
		return nil
	}
	if imageURL == "" {
		c.log.Warn("skipping whatsapp image send, empty url", "to", to)
		return nil
	}

	payload := imagePayload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               recipient(to),
		Type:             "image",
	}
	payload.Image.Link = imageURL
	payload.Image.Caption = caption

	return c.post(ctx, payload)
}

func (c *Client) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.graphURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("whatsapp api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

// recipient normalizes an outbound number to the digits-only form the Cloud
// API expects.
func recipient(to string) string {
	return strings.TrimPrefix(phone.NormalizeE164(to), "+")
}
