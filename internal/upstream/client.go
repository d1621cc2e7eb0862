package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"lablog-console/config"
	"lablog-console/internal/model"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 8 << 20

// Client talks to the lab log-collection REST API.
type Client struct {
	baseURL string
	paths   config.Paths
	client  *http.Client
}

// NewClient creates a client for the configured upstream.
func NewClient(cfg config.UpstreamConfig) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Upstream client will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		log.Println("Warning: upstream base URL is empty; requests use relative paths and only work behind a reverse proxy.")
	}

	return &Client{
		baseURL: base,
		paths:   cfg.Paths,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}
}

// BuildURL joins the base URL, the endpoint path and an optional query string.
func (c *Client) BuildURL(path string, query url.Values) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// AuthHeaders returns the JSON content type plus a bearer token when one is given.
func AuthHeaders(token string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// do performs one request and classifies the outcome. The raw body of a
// successful response is returned for callers that decode it themselves.
func (c *Client) do(ctx context.Context, method, path, token string, payload any, out any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BuildURL(path, nil), reqBody)
	if err != nil {
		return nil, networkError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header = AuthHeaders(token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, networkError(fmt.Errorf("failed to read response body: %w", err))
	}

	if err := Classify(resp, body); err != nil {
		return nil, err
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, &Error{
				Kind:    KindServer,
				Status:  resp.StatusCode,
				Message: "The log collection service returned a malformed response.",
				Err:     err,
			}
		}
	}
	return body, nil
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, userID, password string) (*LoginResponse, error) {
	var out LoginResponse
	if _, err := c.do(ctx, http.MethodPost, c.paths.Login, "", LoginRequest{UserID: userID, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout invalidates the token upstream.
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.do(ctx, http.MethodGet, c.paths.Logout, token, nil, nil)
	return err
}

// ListUsers returns the normalized user list.
func (c *Client) ListUsers(ctx context.Context, token string) ([]model.User, error) {
	body, err := c.do(ctx, http.MethodGet, c.paths.UserList, token, nil, nil)
	if err != nil {
		return nil, err
	}
	users, err := decodeUserList(body)
	if err != nil {
		return nil, &Error{Kind: KindServer, Message: "The user list could not be read.", Err: err}
	}
	return users, nil
}

// InviteUser invites a new member and returns the service's confirmation message.
func (c *Client) InviteUser(ctx context.Context, token string, req InviteRequest) (string, error) {
	body, err := c.do(ctx, http.MethodPost, c.paths.InviteUser, token, req, nil)
	if err != nil {
		return "", err
	}
	return bodyMessage(body), nil
}

// ResetPassword posts a new password pair for a user.
func (c *Client) ResetPassword(ctx context.Context, token string, req ResetPasswordRequest) error {
	_, err := c.do(ctx, http.MethodPost, c.paths.ResetPassword, token, req, nil)
	return err
}

// DeleteUser removes a user.
func (c *Client) DeleteUser(ctx context.Context, token, userID string) error {
	_, err := c.do(ctx, http.MethodPost, c.paths.DeleteUser, token, DeleteUserRequest{UserID: userID}, nil)
	return err
}

// ListLabs returns the lab inventory.
func (c *Client) ListLabs(ctx context.Context, token string) ([]LabEntry, error) {
	var out []LabEntry
	if _, err := c.do(ctx, http.MethodGet, c.paths.LabInventory, token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetInventory returns the raw cabinet rows of a lab, devices included.
func (c *Client) GetInventory(ctx context.Context, token, labID string) ([]CabinetEntry, error) {
	var out []CabinetEntry
	req := InventoryRequest{LabID: labID, WithMeterSetInventory: true}
	if _, err := c.do(ctx, http.MethodPost, c.paths.DeviceInventory, token, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StartLogCollection submits a log collection job.
func (c *Client) StartLogCollection(ctx context.Context, token string, req StartCollectionRequest) error {
	_, err := c.do(ctx, http.MethodPost, c.paths.StartLogCollection, token, req, nil)
	return err
}

// ListLogCollections fetches one page of jobs.
func (c *Client) ListLogCollections(ctx context.Context, token string, req ListCollectionsRequest) (*ListCollectionsResponse, error) {
	var out ListCollectionsResponse
	if _, err := c.do(ctx, http.MethodPost, c.paths.ListLogCollections, token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
