package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const graphBaseURL = "https://graph.facebook.com/v19.0"

// CloudClient talks to the WhatsApp Business Cloud API.
type CloudClient struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	phoneID     string
	verifyToken string
}

var (
	_ Sender          = (*CloudClient)(nil)
	_ MediaDownloader = (*CloudClient)(nil)
)

func NewCloudClient(accessToken, phoneID, verifyToken string) *CloudClient {
	return &CloudClient{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     graphBaseURL,
		accessToken: accessToken,
		phoneID:     phoneID,
		verifyToken: verifyToken,
	}
}

// SendText delivers a plain text message to the given phone number.
func (c *CloudClient) SendText(ctx context.Context, to, body string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("send message: status %d: %s", resp.StatusCode, detail)
	}

	slog.InfoContext(ctx, "Message sent", "to", to, "length", len(body))
	return nil
}

// VerifyWebhook implements the subscription handshake: the challenge
// is echoed back only when the verify token matches.
func (c *CloudClient) VerifyWebhook(mode, token, challenge string) (string, bool) {
	if mode == "subscribe" && token == c.verifyToken {
		return challenge, true
	}
	return "", false
}

// DownloadMedia resolves a media ID to its download URL and fetches
// the bytes. Two round trips, both authenticated.
func (c *CloudClient) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.baseURL, mediaID), nil)
	if err != nil {
		return nil, "", fmt.Errorf("create media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("resolve media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("resolve media: status %d", resp.StatusCode)
	}

	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, "", fmt.Errorf("decode media metadata: %w", err)
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	dlReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	dlResp, err := c.httpClient.Do(dlReq)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download media: status %d", dlResp.StatusCode)
	}

	// Receipts are photos; 10MB is far above anything legitimate.
	data, err := io.ReadAll(io.LimitReader(dlResp.Body, 10<<20))
	if err != nil {
		return nil, "", fmt.Errorf("read media body: %w", err)
	}
	return data, meta.MimeType, nil
}

// webhookPayload mirrors the slice of the Cloud API notification we
// care about. Status updates and unsupported message types are dropped.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
					Image struct {
						ID       string `json:"id"`
						MimeType string `json:"mime_type"`
					} `json:"image"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseWebhook extracts the inbound text and image messages from a
// webhook notification body.
func ParseWebhook(body []byte) ([]InboundMessage, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	var out []InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				switch msg.Type {
				case "text":
					out = append(out, InboundMessage{
						From: msg.From,
						Kind: KindText,
						Text: msg.Text.Body,
					})
				case "image":
					out = append(out, InboundMessage{
						From:    msg.From,
						Kind:    KindImage,
						MediaID: msg.Image.ID,
					})
				}
			}
		}
	}
	return out, nil
}
