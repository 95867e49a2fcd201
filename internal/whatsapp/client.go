package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haulbot/dispatcher/internal/config"
	inats "github.com/haulbot/dispatcher/internal/nats"
)

const defaultAPIBaseURL = "https://api.twilio.com"

// maxMediaBytes bounds a downloaded voice note.
const maxMediaBytes = 16 << 20

// Client talks to the Twilio REST API for outbound messages and media.
type Client struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	http       *http.Client
}

// NewClient creates a Twilio client. A nil httpClient gets a 15s timeout.
func NewClient(cfg config.TwilioConfig, httpClient *http.Client) *Client {
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = defaultAPIBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    base,
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		http:       httpClient,
	}
}

type messageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Send delivers msg over WhatsApp and returns the Twilio message SID.
func (c *Client) Send(ctx context.Context, msg inats.OutboundMessage) (string, error) {
	if msg.To == "" {
		return "", fmt.Errorf("twilio: outbound message has no recipient")
	}

	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", msg.To)
	if msg.Body != "" {
		form.Set("Body", msg.Body)
	}
	if msg.MediaURL != "" {
		form.Set("MediaUrl", msg.MediaURL)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("twilio: building request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio: sending message: %w", err)
	}
	defer resp.Body.Close()

	var out messageResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil && resp.StatusCode < 300 {
		return "", fmt.Errorf("twilio: decoding response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("twilio: status %d code %d: %s", resp.StatusCode, out.Code, out.Message)
	}
	return out.SID, nil
}

// Fetch downloads inbound media. Twilio media URLs require account auth.
func (c *Client) Fetch(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("twilio: building media request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twilio: fetching media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twilio: media status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
}
