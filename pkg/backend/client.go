/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package backend is a client for the medical records REST backend.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/medvault/medvault-go/pkg/common/log"
)

// DefaultURL is the backend address used when none is configured.
const DefaultURL = "https://localhost:7086"

const (
	contentTypeApplicationJSON = "application/json"
	requestIDHeader            = "X-Request-ID"

	failMarshalRequest      = "failed to marshal %s request: %w"
	failCreateRequest       = "failed to create request: %w"
	failSendRequest         = "failed to send request: %w"
	failReadResponseBody    = "failed to read response body: %w"
	failUnmarshalResponse   = "failed to unmarshal %s response: %w"
	failAddRequestHeaders   = "add optional request headers error: %w"
	sendRequestLogMsg       = "Sent %s request to %s (%s). Response status code: %d"
	failCloseResponseLogMsg = "Failed to close response body: %s"
)

var logger = log.New("medvault/backend")

// ErrBackend matches every *Error.
var ErrBackend = errors.New("backend request failed")

// Error is a non-2xx answer from the backend.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// Is reports whether target is ErrBackend.
func (e *Error) Is(target error) bool {
	return target == ErrBackend //nolint:errorlint
}

type tokenKey struct{}

// WithBearerToken returns a context whose requests carry token as bearer authorization.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func bearerToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)

	return token
}

// addHeaders supports adding custom HTTP headers.
type addHeaders func(req *http.Request) (*http.Header, error)

// Option configures the Client.
type Option func(c *Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTLSConfig sets the TLS configuration of the HTTP transport.
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(c *Client) {
		c.httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}
}

// WithHeaders sets a function adding headers to every request.
func WithHeaders(addHeadersFunc func(req *http.Request) (*http.Header, error)) Option {
	return func(c *Client) {
		c.headersFunc = addHeadersFunc
	}
}

// WithToken sets the bearer token used when the request context carries none.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// Client calls the backend REST API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	headersFunc addHeaders
	token       string
}

// New returns a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	req := map[string]string{"email": email, "password": password}

	var res LoginResult

	if err := c.call(ctx, http.MethodPost, "/api/Auth/login", "login", req, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

// InitiateTwoFactorSetup starts TOTP enrollment for email.
func (c *Client) InitiateTwoFactorSetup(ctx context.Context, email string) (*TwoFactorSetup, error) {
	var res TwoFactorSetup

	err := c.call(ctx, http.MethodPost, "/api/Auth/two-factor/setup/initiate", "two-factor setup",
		map[string]string{"email": email}, &res)
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// VerifyTwoFactorCode completes enrollment or login with a TOTP code.
func (c *Client) VerifyTwoFactorCode(ctx context.Context, email, code string) (*TwoFactorResult, error) {
	var res TwoFactorResult

	err := c.call(ctx, http.MethodPost, "/api/Auth/two-factor/setup/verify", "two-factor verify",
		map[string]string{"email": email, "code": code}, &res)
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// GetPatient returns the patient profile with id.
func (c *Client) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	var res Patient

	if err := c.call(ctx, http.MethodGet, "/api/Patients/"+url.PathEscape(patientID), "patient", nil, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

// ListPatients returns every patient visible to the caller.
func (c *Client) ListPatients(ctx context.Context) ([]Patient, error) {
	var res []Patient

	if err := c.call(ctx, http.MethodGet, "/api/Patients", "patients", nil, &res); err != nil {
		return nil, err
	}

	return res, nil
}

// GetPublicKeys returns the registered public keys of userIDs. Users without a key are absent.
func (c *Client) GetPublicKeys(ctx context.Context, userIDs []string) ([]PublicKey, error) {
	if len(userIDs) == 0 {
		return []PublicKey{}, nil
	}

	var res []PublicKey

	endpoint := "/api/Users/publickeys?userIds=" + url.QueryEscape(strings.Join(userIDs, ","))

	if err := c.call(ctx, http.MethodGet, endpoint, "public keys", nil, &res); err != nil {
		return nil, err
	}

	return res, nil
}

// RegisterPublicKey stores publicKey for userID.
func (c *Client) RegisterPublicKey(ctx context.Context, userID, publicKey string) error {
	return c.call(ctx, http.MethodPut, "/api/Users/"+url.PathEscape(userID)+"/public-key", "register public key",
		map[string]string{"publicKey": publicKey}, nil)
}

// CreateRecord stores a sealed record.
func (c *Client) CreateRecord(ctx context.Context, rec *NewRecord) (*CreatedRecord, error) {
	if rec.EncryptedKeys == nil {
		rec.EncryptedKeys = []WrappedKey{}
	}

	var res CreatedRecord

	if err := c.call(ctx, http.MethodPost, "/api/MedicalRecords", "create record", rec, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

// GetRecords returns the records of userID with the record key wrapped for keyUserID.
func (c *Client) GetRecords(ctx context.Context, userID, keyUserID string) ([]Record, error) {
	q := url.Values{}
	q.Set("userId", userID)

	if keyUserID != "" {
		q.Set("keyUserId", keyUserID)
	}

	var res []Record

	if err := c.call(ctx, http.MethodGet, "/api/MedicalRecords?"+q.Encode(), "records", nil, &res); err != nil {
		return nil, err
	}

	return res, nil
}

// AddRecordKey stores the record key wrapped for another user.
func (c *Client) AddRecordKey(ctx context.Context, recordID string, key WrappedKey) error {
	return c.call(ctx, http.MethodPost, "/api/MedicalRecords/"+url.PathEscape(recordID)+"/keys", "add record key",
		key, nil)
}

// call sends in as JSON and decodes a 2xx answer into out when out is not nil.
func (c *Client) call(ctx context.Context, method, endpoint, what string, in, out interface{}) error {
	var body []byte

	if in != nil {
		var err error

		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf(failMarshalRequest, what, err)
		}
	}

	statusCode, respBytes, err := c.sendHTTPRequest(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return err
	}

	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return &Error{StatusCode: statusCode, Message: errorMessage(respBytes, statusCode)}
	}

	if out == nil || len(bytes.TrimSpace(respBytes)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBytes, out); err != nil {
		return fmt.Errorf(failUnmarshalResponse, what, err)
	}

	return nil
}

func (c *Client) sendHTTPRequest(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return -1, nil, fmt.Errorf(failCreateRequest, err)
	}

	if c.headersFunc != nil {
		httpHeaders, errAddHdr := c.headersFunc(req)
		if errAddHdr != nil {
			return -1, nil, fmt.Errorf(failAddRequestHeaders, errAddHdr)
		}

		if httpHeaders != nil {
			req.Header = httpHeaders.Clone()
		}
	}

	if len(body) > 0 {
		req.Header.Set("Content-Type", contentTypeApplicationJSON)
	}

	req.Header.Set("Accept", contentTypeApplicationJSON)

	requestID := uuid.New().String()
	req.Header.Set(requestIDHeader, requestID)

	token := bearerToken(ctx)
	if token == "" {
		token = c.token
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return -1, nil, fmt.Errorf(failSendRequest, err)
	}

	defer closeReadCloser(resp.Body)

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return -1, nil, fmt.Errorf(failReadResponseBody, err)
	}

	logger.Debugf(sendRequestLogMsg, method, endpoint, requestID, resp.StatusCode)

	return resp.StatusCode, respBytes, nil
}

// errorMessage extracts {"message": ...} or falls back to the raw body.
func errorMessage(body []byte, statusCode int) string {
	var msg struct {
		Message string `json:"message"`
		Title   string `json:"title"`
	}

	if json.Unmarshal(body, &msg) == nil {
		if msg.Message != "" {
			return msg.Message
		}

		if msg.Title != "" {
			return msg.Title
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}

	return http.StatusText(statusCode)
}

func closeReadCloser(respBody io.ReadCloser) {
	if err := respBody.Close(); err != nil {
		logger.Errorf(failCloseResponseLogMsg, err)
	}
}
