package ynab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPClient implements Client against the hosted YNAB API.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
	log     logrus.FieldLogger
}

func NewHTTPClient(baseURL, token string, log logrus.FieldLogger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

func (c *HTTPClient) ListCategories(ctx context.Context, budgetID string) ([]Category, error) {
	var resp categoriesResponse
	u := fmt.Sprintf("%s/budgets/%s/categories", c.baseURL, url.PathEscape(budgetID))
	if err := c.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	var out []Category
	for _, group := range resp.Data.CategoryGroups {
		if group.Hidden || group.Deleted {
			continue
		}
		for _, cat := range group.Categories {
			if cat.Hidden || cat.Deleted {
				continue
			}
			cat.GroupName = group.Name
			out = append(out, cat)
		}
	}
	return out, nil
}

func (c *HTTPClient) ImportTransactions(ctx context.Context, req ImportRequest) (ImportResult, error) {
	return c.create(ctx, req, 1)
}

func (c *HTTPClient) ForceImport(ctx context.Context, req ImportRequest) (ImportResult, error) {
	return c.create(ctx, req, 2)
}

func (c *HTTPClient) create(ctx context.Context, req ImportRequest, occurrence int) (ImportResult, error) {
	payload := transactionsPayload{}
	importIDToTx := map[string]string{}
	for _, item := range req.Items {
		importID := ImportID(item.BankID, occurrence)
		importIDToTx[importID] = item.TransactionID
		payload.Transactions = append(payload.Transactions, toPayload(req.AccountID, importID, item))
	}

	var resp transactionsResponse
	u := fmt.Sprintf("%s/budgets/%s/transactions", c.baseURL, url.PathEscape(req.BudgetID))
	if err := c.do(ctx, http.MethodPost, u, payload, &resp); err != nil {
		return ImportResult{}, err
	}

	result := ImportResult{
		CreatedCount: len(resp.Data.TransactionIDs),
		CreatedIDs:   map[string]string{},
	}
	for _, created := range resp.Data.Transactions {
		if txID, ok := importIDToTx[created.ImportID]; ok {
			result.CreatedIDs[txID] = created.ID
		}
	}
	for _, dup := range resp.Data.DuplicateImportIDs {
		if txID, ok := importIDToTx[dup]; ok {
			result.DuplicateTransactionIDs = append(result.DuplicateTransactionIDs, txID)
		}
	}
	c.log.WithFields(logrus.Fields{
		"created":    result.CreatedCount,
		"duplicates": len(result.DuplicateTransactionIDs),
	}).Info("ynab import finished")
	return result, nil
}

func toPayload(accountID, importID string, item ImportItem) transactionPayload {
	p := transactionPayload{
		AccountID: accountID,
		Date:      item.Date.Format("2006-01-02"),
		Amount:    Milliunits(item.Amount),
		PayeeName: item.Payee,
		Memo:      item.Memo,
		Cleared:   "cleared",
		Approved:  true,
		ImportID:  importID,
	}
	if len(item.Splits) > 0 {
		for _, s := range item.Splits {
			p.SubTransactions = append(p.SubTransactions, subTransaction{
				Amount:     Milliunits(s.Amount),
				CategoryID: s.CategoryID,
				Memo:       s.Memo,
			})
		}
	} else {
		p.CategoryID = item.CategoryID
	}
	return p
}

func (c *HTTPClient) do(ctx context.Context, method, u string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ynab: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		retry := 60 * time.Second
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				retry = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retry}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		var apiErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Detail != "" {
			return fmt.Errorf("ynab: %s (%s)", apiErr.Error.Detail, apiErr.Error.Name)
		}
		return fmt.Errorf("ynab: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ynab: invalid response: %w", err)
	}
	return nil
}
