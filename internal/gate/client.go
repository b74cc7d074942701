// Package gate talks to the physical gate-control service.
package gate

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/programador11r-tec/zkt-sub000/internal/config"
	"github.com/programador11r-tec/zkt-sub000/internal/gate/domain"
)

type openResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type notifyResponse struct {
	Code string `json:"code"`
}

// Client implements domain.Controller over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(cfg config.Config) domain.Controller {
	dialer := &net.Dialer{Timeout: cfg.Gate.ConnectTimeout}
	return &Client{
		baseURL: cfg.Gate.BaseURL,
		apiKey:  cfg.Gate.APIKey,
		client: &http.Client{
			Timeout: cfg.Gate.TotalTimeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: cfg.Gate.ConnectTimeout,
			},
		},
	}
}

func (c *Client) OpenChannel(ctx context.Context, channelID string) (domain.OpenResult, error) {
	if strings.TrimSpace(c.baseURL) == "" {
		return domain.OpenResult{}, domain.ErrNotConfigured
	}

	values := url.Values{}
	values.Set("channelId", channelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/channel/open", strings.NewReader(values.Encode()))
	if err != nil {
		return domain.OpenResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.OpenResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.OpenResult{HTTPStatus: resp.StatusCode}, err
	}

	result := domain.OpenResult{HTTPStatus: resp.StatusCode, Raw: body}
	var parsed openResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr == nil {
		result.Code = parsed.Code
		result.Message = parsed.Message
	}
	result.OK = resp.StatusCode >= 200 && resp.StatusCode < 300
	return result, nil
}

func (c *Client) PayNotify(ctx context.Context, carNumber, recordID, paymentType string) (domain.NotifyOutcome, error) {
	if strings.TrimSpace(c.baseURL) == "" {
		return domain.NotifyOutcome{}, domain.ErrNotConfigured
	}

	payload, err := json.Marshal(map[string]string{
		"carNumber": carNumber,
		"recordId":  recordID,
		"payType":   paymentType,
	})
	if err != nil {
		return domain.NotifyOutcome{}, err
	}

	endpoint := c.baseURL + "/api/pay/notify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return domain.NotifyOutcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NotifyOutcome{Endpoint: endpoint, Payload: string(payload)}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NotifyOutcome{Endpoint: endpoint, Payload: string(payload), HTTPStatus: resp.StatusCode}, err
	}

	outcome := domain.NotifyOutcome{
		Endpoint:   endpoint,
		Payload:    string(payload),
		HTTPStatus: resp.StatusCode,
		Raw:        body,
	}
	var parsed notifyResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr == nil {
		outcome.AckCode = parsed.Code
	}
	if outcome.AckCode == "" && len(body) > 0 && len(body) < 16 {
		// some controller firmwares answer with a bare code
		outcome.AckCode = strings.TrimSpace(string(body))
	}
	return outcome, nil
}
