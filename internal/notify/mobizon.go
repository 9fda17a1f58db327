package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"deviceguard/pkg/domain"
)

const mobizonDefaultURL = "https://api.mobizon.kz/service/message/sendsmsmessage"

// SMSChannel sends SMS through Mobizon. In dry-run no HTTP request is made.
type SMSChannel struct {
	APIKey  string
	Sender  string
	DryRun  bool
	BaseURL string
	HTTP    *http.Client
	logger  *zap.Logger
}

type mobizonResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MessageID string `json:"messageId"`
	} `json:"data"`
}

func NewSMSChannel(apiKey, sender string, dryRun bool, logger *zap.Logger) *SMSChannel {
	return &SMSChannel{
		APIKey:  apiKey,
		Sender:  sender,
		DryRun:  dryRun,
		BaseURL: mobizonDefaultURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger.Named("sms"),
	}
}

func (c *SMSChannel) Name() domain.Channel { return domain.ChannelSMS }

func (c *SMSChannel) Address(r Recipient) (string, bool) {
	to := strings.TrimPrefix(r.Phone, "+")
	return to, to != ""
}

func (c *SMSChannel) Send(ctx context.Context, to string, content Content) error {
	if c.DryRun || c.APIKey == "" || c.APIKey == "dry-run" {
		c.logger.Info("[sms][dry-run] message accepted", zap.String("to", domain.MaskPhone(to)), zap.Int("len", len(content.Text)))
		return nil
	}

	form := url.Values{
		"apiKey":    {c.APIKey},
		"recipient": {to},
		"text":      {content.Text},
	}
	if c.Sender != "" {
		form.Set("from", c.Sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("send sms request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mobizon http status %d", resp.StatusCode)
	}
	var result mobizonResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parse mobizon response: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("mobizon returned error code %d: %s", result.Code, result.Message)
	}
	c.logger.Info("[sms][send] ok", zap.String("to", domain.MaskPhone(to)), zap.String("message_id", result.Data.MessageID))
	return nil
}
