package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"deviceguard/pkg/domain"
)

// WhatsAppAPIError is a non-2xx answer from the Cloud API.
type WhatsAppAPIError struct {
	StatusCode int
	Body       string
}

func (e WhatsAppAPIError) Error() string {
	return fmt.Sprintf("whatsapp api error: status=%d body=%s", e.StatusCode, e.Body)
}

// WhatsAppChannel sends text messages via the WhatsApp Cloud API.
type WhatsAppChannel struct {
	AccessToken   string
	PhoneNumberID string
	APIVersion    string
	BaseURL       string
	DryRun        bool
	HTTP          *http.Client
	logger        *zap.Logger
}

func NewWhatsAppChannel(token, phoneNumberID, apiVersion string, dryRun bool, logger *zap.Logger) *WhatsAppChannel {
	if strings.TrimSpace(apiVersion) == "" {
		apiVersion = "v20.0"
	}
	return &WhatsAppChannel{
		AccessToken:   strings.TrimSpace(token),
		PhoneNumberID: strings.TrimSpace(phoneNumberID),
		APIVersion:    apiVersion,
		BaseURL:       "https://graph.facebook.com",
		DryRun:        dryRun,
		HTTP:          &http.Client{Timeout: 30 * time.Second},
		logger:        logger.Named("whatsapp"),
	}
}

func (c *WhatsAppChannel) Name() domain.Channel { return domain.ChannelWhatsApp }

// Address uses digits only, without '+', as the Cloud API expects.
func (c *WhatsAppChannel) Address(r Recipient) (string, bool) {
	to := strings.TrimPrefix(r.Phone, "+")
	return to, to != ""
}

func (c *WhatsAppChannel) Send(ctx context.Context, to string, content Content) error {
	if c.DryRun {
		c.logger.Info("[whatsapp][dry-run] message accepted", zap.String("to", domain.MaskPhone(to)))
		return nil
	}
	if c.AccessToken == "" || c.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp access token or phone number id not configured")
	}

	url := fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(c.BaseURL, "/"), c.APIVersion, c.PhoneNumberID)
	b, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": content.Text},
	})
	if err != nil {
		return fmt.Errorf("marshal whatsapp body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return WhatsAppAPIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	c.logger.Info("[whatsapp][send] ok", zap.String("to", domain.MaskPhone(to)))
	return nil
}
