// Package push delivers incoming-call alerts through the Expo push service.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
)

const DefaultEndpoint = "https://exp.host/--/api/v2/push/send"

var (
	tokenRe = regexp.MustCompile(`^Expo(nent)?PushToken\[[^\]]+\]$`)

	ErrDeliveryFailed = errors.New("push delivery failed")
)

// ValidToken reports whether s looks like an Expo push token.
func ValidToken(s string) bool {
	return tokenRe.MatchString(s)
}

type expoMessage struct {
	To        string                `json:"to"`
	Sound     string                `json:"sound"`
	Title     string                `json:"title"`
	Body      string                `json:"body"`
	Data      core.NotificationData `json:"data"`
	Priority  string                `json:"priority"`
	ChannelID string                `json:"channelId"`
}

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details"`
}

type expoResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// ExpoNotifier implements core.Notifier against the Expo push API.
type ExpoNotifier struct {
	Endpoint    string
	AccessToken string
	Client      *http.Client
}

func NewExpoNotifier(endpoint, accessToken string, timeout time.Duration) *ExpoNotifier {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &ExpoNotifier{
		Endpoint:    endpoint,
		AccessToken: accessToken,
		Client:      &http.Client{Timeout: timeout},
	}
}

func (n *ExpoNotifier) Send(ctx context.Context, address string, note core.Notification) error {
	if !ValidToken(address) {
		return fmt.Errorf("%w: not an expo push token", domain.ErrInvalidNotificationAddress)
	}
	body, err := json.Marshal(expoMessage{
		To:        address,
		Sound:     "default",
		Title:     note.Title,
		Body:      note.Body,
		Data:      note.Data,
		Priority:  "high",
		ChannelID: "incoming-calls",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if n.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+n.AccessToken)
	}

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrDeliveryFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrDeliveryFailed, resp.StatusCode, bytes.TrimSpace(raw))
	}
	return parseResponse(raw)
}

func parseResponse(raw []byte) error {
	var resp expoResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrDeliveryFailed, err)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrDeliveryFailed, resp.Errors[0].Code, resp.Errors[0].Message)
	}

	// a single message gets a single ticket; batches get an array
	var tickets []expoTicket
	if err := json.Unmarshal(resp.Data, &tickets); err != nil {
		var one expoTicket
		if err := json.Unmarshal(resp.Data, &one); err != nil {
			return fmt.Errorf("%w: decode ticket: %v", ErrDeliveryFailed, err)
		}
		tickets = []expoTicket{one}
	}
	for _, t := range tickets {
		if t.Status != "error" {
			continue
		}
		if t.Details.Error == "DeviceNotRegistered" {
			return fmt.Errorf("%w: %s", domain.ErrInvalidNotificationAddress, t.Message)
		}
		return fmt.Errorf("%w: %s", ErrDeliveryFailed, t.Message)
	}
	return nil
}
