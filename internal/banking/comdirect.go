package banking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Credentials for the OAuth password grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// Comdirect implements Client against the comdirect REST API.
type Comdirect struct {
	baseURL   string
	accountID string
	creds     Credentials
	http      *http.Client
	log       logrus.FieldLogger

	mu    sync.Mutex
	state map[string]*authState // keyed by sync session id
}

type authState struct {
	accessToken string
	sessionUUID string
	challengeID string
	requestInfo string
}

// NewComdirect builds a client. pollInterval tuning is handled internally.
func NewComdirect(baseURL, accountID string, creds Credentials, log logrus.FieldLogger) *Comdirect {
	return &Comdirect{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accountID: accountID,
		creds:     creds,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       log,
		state:     map[string]*authState{},
	}
}

// StartAuth performs the password-grant login, registers a banking session and
// triggers the P_TAN_PUSH challenge. The returned ref identifies the challenge
// the user must approve in the photoTAN app.
func (c *Comdirect) StartAuth(ctx context.Context, sessionID string) (ChallengeRef, error) {
	token, err := c.oauthToken(ctx)
	if err != nil {
		return ChallengeRef{}, err
	}

	st := &authState{accessToken: token, requestInfo: requestInfo(sessionID)}

	sessionUUID, err := c.fetchSessionUUID(ctx, st)
	if err != nil {
		return ChallengeRef{}, err
	}
	st.sessionUUID = sessionUUID

	challengeID, err := c.validateSession(ctx, st)
	if err != nil {
		return ChallengeRef{}, err
	}
	st.challengeID = challengeID

	c.mu.Lock()
	c.state[sessionID] = st
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"session": sessionID, "challenge": challengeID}).Info("push-TAN challenge issued")
	return ChallengeRef{ID: challengeID, Type: "P_TAN_PUSH"}, nil
}

// ConfirmTan polls the challenge until the user approved it. The bank expires
// unanswered challenges after a few minutes; that surfaces as ErrTanTimeout.
func (c *Comdirect) ConfirmTan(ctx context.Context, sessionID string) error {
	st, err := c.stateFor(sessionID)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(5 * time.Minute)
	for {
		status, err := c.challengeStatus(ctx, st)
		if err != nil {
			return err
		}
		switch status {
		case "AUTHENTICATED":
			return c.activateSession(ctx, st)
		case "PENDING":
			// keep polling
		default:
			return fmt.Errorf("%w: challenge status %s", ErrTanNotApproved, status)
		}
		if time.Now().After(deadline) {
			return ErrTanTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// FetchTransactions reads booked transactions for the configured account.
func (c *Comdirect) FetchTransactions(ctx context.Context, sessionID string) ([]Transaction, error) {
	st, err := c.stateFor(sessionID)
	if err != nil {
		return nil, err
	}

	var out []Transaction
	for page := 0; ; page++ {
		u := fmt.Sprintf("%s/api/banking/v1/accounts/%s/transactions?transactionState=BOOKED&paging-first=%d",
			c.baseURL, url.PathEscape(c.accountID), page*50)
		var body struct {
			Paging struct {
				Matches int `json:"matches"`
			} `json:"paging"`
			Values []comdirectTransaction `json:"values"`
		}
		if err := c.doJSON(ctx, st, http.MethodGet, u, nil, &body); err != nil {
			return nil, err
		}
		for _, v := range body.Values {
			tx, err := v.toTransaction(c.baseURL)
			if err != nil {
				return nil, err
			}
			out = append(out, tx)
		}
		if len(out) >= body.Paging.Matches || len(body.Values) == 0 {
			break
		}
	}
	return out, nil
}

type comdirectTransaction struct {
	Reference   string `json:"reference"`
	BookingDate string `json:"bookingDate"`
	Amount      struct {
		Value string `json:"value"`
		Unit  string `json:"unit"`
	} `json:"amount"`
	Remitter struct {
		HolderName string `json:"holderName"`
	} `json:"remitter"`
	Creditor struct {
		HolderName string `json:"holderName"`
	} `json:"creditor"`
	RemittanceInfo string `json:"remittanceInfo"`
}

func (v comdirectTransaction) toTransaction(baseURL string) (Transaction, error) {
	amount, err := decimal.NewFromString(v.Amount.Value)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s amount %q: %w", v.Reference, v.Amount.Value, err)
	}
	date, err := time.Parse("2006-01-02", v.BookingDate)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s booking date %q: %w", v.Reference, v.BookingDate, err)
	}
	payee := v.Remitter.HolderName
	if amount.IsNegative() {
		payee = v.Creditor.HolderName
	}
	return Transaction{
		ID:          v.Reference,
		Payee:       payee,
		Memo:        strings.TrimSpace(v.RemittanceInfo),
		BookingDate: date,
		Amount:      amount,
		Currency:    v.Amount.Unit,
		DeepLink:    baseURL + "/transaction/" + url.PathEscape(v.Reference),
	}, nil
}

func (c *Comdirect) oauthToken(ctx context.Context) (string, error) {
	form := url.Values{
		"client_id":     {c.creds.ClientID},
		"client_secret": {c.creds.ClientSecret},
		"username":      {c.creds.Username},
		"password":      {c.creds.Password},
		"grant_type":    {"password"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return "", ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return "", unexpectedStatus(resp)
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	return body.AccessToken, nil
}

func (c *Comdirect) fetchSessionUUID(ctx context.Context, st *authState) (string, error) {
	var sessions []struct {
		Identifier string `json:"identifier"`
	}
	u := c.baseURL + "/api/session/clients/user/v1/sessions"
	if err := c.doJSON(ctx, st, http.MethodGet, u, nil, &sessions); err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", fmt.Errorf("%w: no banking session", ErrAuthFailed)
	}
	return sessions[0].Identifier, nil
}

func (c *Comdirect) validateSession(ctx context.Context, st *authState) (string, error) {
	u := fmt.Sprintf("%s/api/session/clients/user/v1/sessions/%s/validate", c.baseURL, url.PathEscape(st.sessionUUID))
	payload := map[string]any{
		"identifier":       st.sessionUUID,
		"sessionTanActive": true,
		"activated2FA":     true,
	}
	req, err := c.newJSONRequest(ctx, st, http.MethodPost, u, payload)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", unexpectedStatus(resp)
	}

	// Challenge id arrives in the once-authentication-info response header.
	var info struct {
		ID  string `json:"id"`
		Typ string `json:"typ"`
	}
	header := resp.Header.Get("x-once-authentication-info")
	if err := json.Unmarshal([]byte(header), &info); err != nil || info.ID == "" {
		return "", fmt.Errorf("%w: missing TAN challenge", ErrAuthFailed)
	}
	return info.ID, nil
}

func (c *Comdirect) challengeStatus(ctx context.Context, st *authState) (string, error) {
	u := fmt.Sprintf("%s/api/session/v1/tan/%s/status", c.baseURL, url.PathEscape(st.challengeID))
	var body struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, st, http.MethodGet, u, nil, &body); err != nil {
		return "", err
	}
	return body.Status, nil
}

func (c *Comdirect) activateSession(ctx context.Context, st *authState) error {
	u := fmt.Sprintf("%s/api/session/clients/user/v1/sessions/%s", c.baseURL, url.PathEscape(st.sessionUUID))
	payload := map[string]any{
		"identifier":       st.sessionUUID,
		"sessionTanActive": true,
		"activated2FA":     true,
	}
	req, err := c.newJSONRequest(ctx, st, http.MethodPatch, u, payload)
	if err != nil {
		return err
	}
	req.Header.Set("x-once-authentication-info", fmt.Sprintf(`{"id":%q}`, st.challengeID))

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return unexpectedStatus(resp)
	}
	return nil
}

func (c *Comdirect) stateFor(sessionID string) (*authState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.state[sessionID]
	if !ok {
		return nil, ErrSessionExpired
	}
	return st, nil
}

func (c *Comdirect) newJSONRequest(ctx context.Context, st *authState, method, u string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+st.accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-http-request-info", st.requestInfo)
	return req, nil
}

func (c *Comdirect) doJSON(ctx context.Context, st *authState, method, u string, payload, out any) error {
	req, err := c.newJSONRequest(ctx, st, method, u, payload)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrSessionExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return unexpectedStatus(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func requestInfo(sessionID string) string {
	return fmt.Sprintf(`{"clientRequestId":{"sessionId":%q,"requestId":"%d"}}`, sessionID, time.Now().UnixMilli()%1e9)
}

func unexpectedStatus(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("comdirect: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
