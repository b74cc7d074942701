// Package fel talks to the fiscal certification service.
package fel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/programador11r-tec/zkt-sub000/internal/config"
	"github.com/programador11r-tec/zkt-sub000/internal/fel/domain"
	"go.uber.org/zap"
)

type certifyRequest struct {
	EmitterNIT  string  `json:"emitter_nit"`
	ReceptorNIT string  `json:"receptor_nit"`
	TicketNo    string  `json:"ticket_no"`
	Total       float64 `json:"total"`
	Hours       int     `json:"hours"`
	Minutes     int     `json:"minutes"`
	Mode        string  `json:"mode"`
}

type certifyResponse struct {
	OK    bool   `json:"ok"`
	UUID  string `json:"uuid"`
	PDF   string `json:"pdf,omitempty"`
	Error string `json:"error,omitempty"`
}

// Client implements domain.Certifier over HTTP.
type Client struct {
	baseURL    string
	token      string
	emitterNIT string
	client     *http.Client
	log        *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) domain.Certifier {
	dialer := &net.Dialer{Timeout: cfg.Fel.ConnectTimeout}
	return &Client{
		baseURL:    cfg.Fel.BaseURL,
		token:      cfg.Fel.Token,
		emitterNIT: cfg.Fel.EmitterNIT,
		client: &http.Client{
			Timeout: cfg.Fel.TotalTimeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: cfg.Fel.ConnectTimeout,
			},
		},
		log: log.Named("fel.client"),
	}
}

// Certify submits a draft. Transport failures are returned as errors so
// the coordinator can map them to a FAILED invoice; a declined draft
// comes back with OK=false and Err set.
func (c *Client) Certify(ctx context.Context, draft domain.InvoiceDraft) (domain.Result, error) {
	if strings.TrimSpace(c.baseURL) == "" {
		return domain.Result{}, domain.ErrNotConfigured
	}

	payload, err := json.Marshal(certifyRequest{
		EmitterNIT:  c.emitterNIT,
		ReceptorNIT: draft.ReceptorNIT,
		TicketNo:    draft.TicketNo,
		Total:       draft.Total,
		Hours:       draft.Hours,
		Minutes:     draft.Minutes,
		Mode:        draft.Mode,
	})
	if err != nil {
		return domain.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/certify", bytes.NewReader(payload))
	if err != nil {
		return domain.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Result{RawRequest: payload}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Result{RawRequest: payload}, err
	}

	result := domain.Result{RawRequest: payload, RawResponse: body}

	var parsed certifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		result.Err = fmt.Sprintf("unparseable certifier response (status %d)", resp.StatusCode)
		return result, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !parsed.OK || strings.TrimSpace(parsed.UUID) == "" {
		result.Err = parsed.Error
		if result.Err == "" {
			result.Err = fmt.Sprintf("certifier declined (status %d)", resp.StatusCode)
		}
		return result, nil
	}

	result.OK = true
	result.UUID = strings.TrimSpace(parsed.UUID)
	if parsed.PDF != "" {
		if pdf, decErr := base64.StdEncoding.DecodeString(parsed.PDF); decErr == nil {
			result.PDF = pdf
		} else {
			c.log.Warn("certifier returned undecodable pdf", zap.String("uuid", result.UUID))
		}
	}
	return result, nil
}

func (c *Client) FetchPDF(ctx context.Context, uuid string) ([]byte, error) {
	if strings.TrimSpace(c.baseURL) == "" {
		return nil, domain.ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v2/documents/"+uuid+"/pdf", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrPDFNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch pdf: unexpected status %d", resp.StatusCode)
	}

	start := time.Now()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	c.log.Debug("fetched certified pdf",
		zap.String("uuid", uuid),
		zap.Int("bytes", len(body)),
		zap.Int64("read_ms", time.Since(start).Milliseconds()),
	)
	return body, nil
}
