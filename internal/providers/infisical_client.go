package providers

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/systmms/secretspec/internal/providers/contracts"
)

// infisicalHTTPClient implements contracts.InfisicalClient against the
// Infisical REST API.
type infisicalHTTPClient struct {
	httpClient *http.Client
	host       string
	config     InfisicalConfig
}

// newInfisicalHTTPClient creates a new HTTP client for Infisical
func newInfisicalHTTPClient(cfg InfisicalConfig) (*infisicalHTTPClient, error) {
	transport := &http.Transport{TLSClientConfig: &tls.Config{}}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate %s", cfg.CACert)
		}
		transport.TLSClientConfig.RootCAs = pool
	}

	return &infisicalHTTPClient{
		httpClient: &http.Client{Transport: transport, Timeout: 30 * time.Second},
		host:       strings.TrimSuffix(cfg.Host, "/"),
		config:     cfg,
	}, nil
}

// Authenticate exchanges machine identity credentials for an access token.
// A configured token is used as is.
func (c *infisicalHTTPClient) Authenticate(ctx context.Context) (string, time.Duration, error) {
	if c.config.Token != "" {
		return c.config.Token, 24 * time.Hour, nil
	}

	body, err := json.Marshal(map[string]string{
		"clientId":     c.config.ClientID,
		"clientSecret": c.config.ClientSecret,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal auth request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/auth/universal-auth/login", "", body)
	if err != nil {
		return "", 0, &InfisicalError{Op: "auth", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, infisicalStatusError("auth", resp)
	}

	var authResp struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int    `json:"expiresIn"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", 0, fmt.Errorf("failed to decode auth response: %w", err)
	}

	ttl := time.Duration(authResp.ExpiresIn) * time.Second
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return authResp.AccessToken, ttl, nil
}

// GetSecret reads a shared secret with its references expanded.
func (c *infisicalHTTPClient) GetSecret(ctx context.Context, token string, loc contracts.InfisicalLocation, name string) (string, bool, error) {
	q := url.Values{}
	q.Set("workspaceId", loc.ProjectID)
	q.Set("environment", loc.Environment)
	q.Set("secretPath", loc.SecretPath)
	q.Set("type", "shared")
	q.Set("expandSecretReferences", "true")

	resp, err := c.do(ctx, http.MethodGet, "/api/v3/secrets/raw/"+url.PathEscape(name)+"?"+q.Encode(), token, nil)
	if err != nil {
		return "", false, &InfisicalError{Op: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, infisicalStatusError("fetch", resp)
	}

	var secretResp struct {
		Secret struct {
			SecretKey   string `json:"secretKey"`
			SecretValue string `json:"secretValue"`
		} `json:"secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&secretResp); err != nil {
		return "", false, fmt.Errorf("failed to decode response: %w", err)
	}
	return secretResp.Secret.SecretValue, true, nil
}

// SetSecret updates the secret and creates it when the update finds
// nothing to change.
func (c *infisicalHTTPClient) SetSecret(ctx context.Context, token string, loc contracts.InfisicalLocation, name, value string) error {
	body, err := json.Marshal(map[string]string{
		"workspaceId": loc.ProjectID,
		"environment": loc.Environment,
		"secretPath":  loc.SecretPath,
		"type":        "shared",
		"secretValue": value,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal secret: %w", err)
	}
	path := "/api/v3/secrets/raw/" + url.PathEscape(name)

	resp, err := c.do(ctx, http.MethodPatch, path, token, body)
	if err != nil {
		return &InfisicalError{Op: "update", Err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusBadRequest:
		return infisicalStatusError("update", resp)
	}

	resp, err = c.do(ctx, http.MethodPost, path, token, body)
	if err != nil {
		return &InfisicalError{Op: "create", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return infisicalStatusError("create", resp)
	}
	return nil
}

func (c *infisicalHTTPClient) do(ctx context.Context, method, path, token string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.httpClient.Do(req)
}

func infisicalStatusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(data))
	var apiErr struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return &InfisicalError{Op: op, StatusCode: resp.StatusCode, Message: msg}
}

// Ensure infisicalHTTPClient implements contracts.InfisicalClient
var _ contracts.InfisicalClient = (*infisicalHTTPClient)(nil)
