package emp

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/WebOleg/Laravel-start-te-sub000/app/models"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/env"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/security"
)

const (
	defaultEmpBaseURL = "https://gateway.emerchantpay.net"

	reconcilePath       = "/reconcile/"
	reconcileByDatePath = "/reconcile/by_date/"
)

// Client issues reconcile requests against the EMP gateway. It carries no
// account credentials itself; each call authenticates with the passed
// account. It never mutates local state.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClientFromEnv builds a gateway client with the configured base URL
// fallback. Per-account base URLs override it.
func NewClientFromEnv() *Client {
	return &Client{
		BaseURL: strings.TrimSpace(env.GetEnv("EMP_BASE_URL", defaultEmpBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type reconcileRequest struct {
	XMLName  xml.Name `xml:"reconcile"`
	UniqueID string   `xml:"unique_id"`
}

type reconcileByDateRequest struct {
	XMLName   xml.Name `xml:"reconcile"`
	StartDate string   `xml:"start_date"`
	EndDate   string   `xml:"end_date"`
	Page      int      `xml:"page"`
}

type paymentResponse struct {
	TransactionType string `xml:"transaction_type"`
	Status          string `xml:"status"`
	UniqueID        string `xml:"unique_id"`
	Amount          int64  `xml:"amount"`
	Currency        string `xml:"currency"`
	Timestamp       string `xml:"timestamp"`
	ReasonCode      string `xml:"reason_code"`
	Code            string `xml:"code"`
	Message         string `xml:"message"`
}

type paymentResponses struct {
	XMLName    xml.Name          `xml:"payment_responses"`
	PerPage    string            `xml:"per_page,attr"`
	Page       string            `xml:"page,attr"`
	TotalCount string            `xml:"total_count,attr"`
	Responses  []paymentResponse `xml:"payment_response"`
}

// Reconcile queries the gateway ledger for one transaction by unique id.
func (c *Client) Reconcile(ctx context.Context, account *models.EmpAccount, uniqueID string) (*TransactionResult, error) {
	if strings.TrimSpace(uniqueID) == "" {
		return nil, errors.New("unique_id is required")
	}

	body, err := c.post(ctx, account, reconcilePath, reconcileRequest{UniqueID: strings.TrimSpace(uniqueID)})
	if err != nil {
		return nil, err
	}

	var resp paymentResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, newClientError(ErrKindMalformed, 0, "decode reconcile response: %v", err)
	}
	if strings.TrimSpace(resp.UniqueID) == "" && strings.TrimSpace(resp.Status) == "" {
		return nil, newClientError(ErrKindMalformed, 0, "reconcile response missing unique_id and status")
	}
	return normalizeResponse(resp), nil
}

// ReconcileByDate fetches one page of the gateway transaction history for a
// calendar date range. The caller validates the range.
func (c *Client) ReconcileByDate(ctx context.Context, account *models.EmpAccount, from, to time.Time, page int) (*ByDatePage, error) {
	if page < 1 {
		page = 1
	}

	body, err := c.post(ctx, account, reconcileByDatePath, reconcileByDateRequest{
		StartDate: from.Format("2006-01-02"),
		EndDate:   to.Format("2006-01-02"),
		Page:      page,
	})
	if err != nil {
		return nil, err
	}

	var resp paymentResponses
	if err := xml.Unmarshal(body, &resp); err != nil {
		// A range with a single transaction comes back as a bare
		// payment_response element instead of the list wrapper.
		var single paymentResponse
		if serr := xml.Unmarshal(body, &single); serr == nil && strings.TrimSpace(single.UniqueID) != "" {
			return &ByDatePage{
				Records:    []TransactionResult{*normalizeResponse(single)},
				Page:       page,
				PerPage:    1,
				TotalCount: 1,
			}, nil
		}
		return nil, newClientError(ErrKindMalformed, 0, "decode by_date response: %v", err)
	}

	out := &ByDatePage{
		Page:       atoiOr(resp.Page, page),
		PerPage:    atoiOr(resp.PerPage, len(resp.Responses)),
		TotalCount: atoiOr(resp.TotalCount, len(resp.Responses)),
	}
	for _, r := range resp.Responses {
		if strings.TrimSpace(r.UniqueID) == "" {
			continue
		}
		out.Records = append(out.Records, *normalizeResponse(r))
	}
	return out, nil
}

// post sends one authenticated XML request and returns the raw body.
// Network failures, non-2xx statuses and oversized bodies surface as
// ClientError values.
func (c *Client) post(ctx context.Context, account *models.EmpAccount, path string, payload interface{}) ([]byte, error) {
	if account == nil {
		return nil, errors.New("emp account is required")
	}

	base := strings.TrimRight(account.BaseURL, "/")
	if base == "" {
		base = strings.TrimRight(c.BaseURL, "/")
	}
	if base == "" {
		return nil, errors.New("emp base url is not configured")
	}

	reqBody, err := xml.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	password, err := security.Decrypt(account.PasswordEnc)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(account.Username, password)
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("Accept", "application/xml")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, newClientError(ErrKindNetwork, 0, "%v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newClientError(ErrKindGateway, resp.StatusCode, "%s", strings.TrimSpace(string(body)))
	}
	return body, nil
}

func normalizeResponse(r paymentResponse) *TransactionResult {
	return &TransactionResult{
		UniqueID:             strings.TrimSpace(r.UniqueID),
		TransactionType:      strings.TrimSpace(r.TransactionType),
		RawStatus:            strings.ToLower(strings.TrimSpace(r.Status)),
		AmountCents:          r.Amount,
		Currency:             strings.ToUpper(strings.TrimSpace(r.Currency)),
		Timestamp:            strings.TrimSpace(r.Timestamp),
		ChargebackReasonCode: strings.TrimSpace(r.ReasonCode),
	}
}

func atoiOr(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}
