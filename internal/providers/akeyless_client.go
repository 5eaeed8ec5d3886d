package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	akeyless "github.com/akeylesslabs/akeyless-go/v3"

	"github.com/systmms/secretspec/internal/providers/contracts"
)

// akeylessTokenTTL is how long an Akeyless token is reused. Tokens last 30
// minutes on the server.
const akeylessTokenTTL = 25 * time.Minute

// akeylessSDKClient implements contracts.AkeylessClient using the official SDK
type akeylessSDKClient struct {
	apiClient *akeyless.APIClient
	config    AkeylessConfig
}

// newAkeylessSDKClient builds the API client. It does not contact the
// gateway.
func newAkeylessSDKClient(cfg AkeylessConfig) *akeylessSDKClient {
	configuration := akeyless.NewConfiguration()
	configuration.Servers = []akeyless.ServerConfiguration{
		{URL: cfg.GatewayURL},
	}
	configuration.HTTPClient = &http.Client{Timeout: 30 * time.Second}

	return &akeylessSDKClient{
		apiClient: akeyless.NewAPIClient(configuration),
		config:    cfg,
	}
}

// Authenticate obtains an access token from Akeyless
func (c *akeylessSDKClient) Authenticate(ctx context.Context) (string, time.Duration, error) {
	authBody := akeyless.NewAuthWithDefaults()
	authBody.SetAccessId(c.config.AccessID)

	switch c.config.AccessType {
	case "access_key", "":
		authBody.SetAccessKey(c.config.AccessKey)
	case "aws_iam", "azure_ad", "gcp":
		authBody.SetAccessType(c.config.AccessType)
		if c.config.CloudID != "" {
			authBody.SetCloudId(c.config.CloudID)
		}
		if c.config.AccessType == "gcp" && c.config.GCPAudience != "" {
			authBody.SetGcpAudience(c.config.GCPAudience)
		}
	default:
		return "", 0, fmt.Errorf("unsupported access type: %s", c.config.AccessType)
	}

	authRes, resp, err := c.apiClient.V2Api.Auth(ctx).Body(*authBody).Execute()
	if err != nil {
		return "", 0, akeylessStatusError(resp, err)
	}
	return authRes.GetToken(), akeylessTokenTTL, nil
}

// GetSecret retrieves a static secret by path
func (c *akeylessSDKClient) GetSecret(ctx context.Context, token, path string) (string, bool, error) {
	body := akeyless.NewGetSecretValue([]string{path})
	body.SetToken(token)

	res, resp, err := c.apiClient.V2Api.GetSecretValue(ctx).Body(*body).Execute()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound || isAkeylessNotFoundError(err) {
			return "", false, nil
		}
		return "", false, akeylessStatusError(resp, err)
	}

	// GetSecretValue returns a map of path -> value
	value, ok := res[path]
	if !ok {
		return "", false, nil
	}
	return akeylessValueString(value), true, nil
}

// akeylessValueString renders a returned secret value. Structured values
// are returned as JSON.
func akeylessValueString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// akeylessStatusError tags err with the sentinel for its HTTP status.
func akeylessStatusError(resp *http.Response, err error) error {
	if resp == nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrAkeylessUnauthorized, err)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrAkeylessPermission, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrAkeylessRateLimited, err)
	}
	return err
}

// isAkeylessNotFoundError checks if an error indicates secret not found
func isAkeylessNotFoundError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "itemNotFound") || strings.Contains(errStr, "item not found")
}

var _ contracts.AkeylessClient = (*akeylessSDKClient)(nil)
