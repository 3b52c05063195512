// Package clients holds the HTTP client for the remote flip-tracking server.
package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fliptrack/internal/domain"
)

// ErrUnauthorized is returned when the server rejects the client's
// credentials. The ledger does not retry it; the caller must force re-login.
var ErrUnauthorized = errors.New("backend rejected credentials")

// Backend is the remote server capability consumed by the ledger and tracker.
type Backend interface {
	SendTransactions(ctx context.Context, batch []domain.Transaction, accountID string) ([]domain.Flip, error)
	LoadFlips(ctx context.Context, accountID string) ([]domain.Flip, error)
	DeleteFlip(ctx context.Context, flipID, accountID string) error
	DeleteTransaction(ctx context.Context, txID, accountID string) error
	OrphanTransaction(ctx context.Context, txID, accountID string) error
}

const defaultTimeout = 30 * time.Second

// ServerClient is the resty-based Backend implementation.
type ServerClient struct {
	client *resty.Client
	logger *zap.Logger
}

// NewServerClient creates a client for the flip-tracking server.
func NewServerClient(baseURL, token string, logger *zap.Logger) *ServerClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json")

	return &ServerClient{client: client, logger: logger}
}

type sendTransactionsRequest struct {
	AccountID    string               `json:"account_id"`
	Transactions []domain.Transaction `json:"transactions"`
}

type flipsResponse struct {
	Flips []domain.Flip `json:"flips"`
}

// SendTransactions delivers the pending batch and returns the server's
// authoritative flip updates. The server merges re-delivered transaction ids
// as no-ops, so the call is safe to repeat.
func (c *ServerClient) SendTransactions(ctx context.Context, batch []domain.Transaction, accountID string) ([]domain.Flip, error) {
	var out flipsResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(sendTransactionsRequest{AccountID: accountID, Transactions: batch}).
		SetResult(&out).
		Post("/transactions")
	if err != nil {
		return nil, errors.Wrap(err, "send transactions")
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return out.Flips, nil
}

// LoadFlips fetches the canonical flip records for the account.
func (c *ServerClient) LoadFlips(ctx context.Context, accountID string) ([]domain.Flip, error) {
	var out flipsResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("account_id", accountID).
		SetResult(&out).
		Get("/flips")
	if err != nil {
		return nil, errors.Wrap(err, "load flips")
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return out.Flips, nil
}

// DeleteFlip removes a flip from the server's records.
func (c *ServerClient) DeleteFlip(ctx context.Context, flipID, accountID string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("account_id", accountID).
		Delete("/flips/" + flipID)
	if err != nil {
		return errors.Wrap(err, "delete flip")
	}
	return checkStatus(resp)
}

// DeleteTransaction removes a transaction from the server's records.
func (c *ServerClient) DeleteTransaction(ctx context.Context, txID, accountID string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("account_id", accountID).
		Delete("/transactions/" + txID)
	if err != nil {
		return errors.Wrap(err, "delete transaction")
	}
	return checkStatus(resp)
}

// OrphanTransaction marks a transaction as unmatchable so the server stops
// trying to fold it into a flip.
func (c *ServerClient) OrphanTransaction(ctx context.Context, txID, accountID string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("account_id", accountID).
		Post("/transactions/" + txID + "/orphan")
	if err != nil {
		return errors.Wrap(err, "orphan transaction")
	}
	return checkStatus(resp)
}

func checkStatus(resp *resty.Response) error {
	if resp.StatusCode() == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.IsError() {
		return errors.Errorf("backend returned %s", resp.Status())
	}
	return nil
}
