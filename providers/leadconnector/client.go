package leadconnector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-crm-install/core"
)

const (
	defaultRequestTimeout    = 30 * time.Second
	maxResponseBodyBytes     = 1 << 20 // 1 MiB
	defaultPageLimit         = 1000
	installedLocationsFilter = "true"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	ClientID              string
	ClientSecret          string
	AppID                 string
	TokenURL              string
	LocationTokenURL      string
	InstalledLocationsURL string
	PageLimit             int
	RequestTimeout        time.Duration
	Now                   func() time.Time
	HTTPClient            HTTPDoer
}

// Client talks to the CRM platform OAuth surfaces: the token endpoint, the
// location token endpoint and the installed-locations listing.
type Client struct {
	cfg        Config
	httpClient HTTPDoer
}

type tokenEndpointPayload struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	CompanyID    string
	LocationID   string
	UserID       string
}

func NewClient(cfg Config) (*Client, error) {
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.AppID = strings.TrimSpace(cfg.AppID)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.LocationTokenURL = strings.TrimSpace(cfg.LocationTokenURL)
	cfg.InstalledLocationsURL = strings.TrimSpace(cfg.InstalledLocationsURL)
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("leadconnector: client id is required")
	}
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("leadconnector: token url is required")
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = defaultPageLimit
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time {
			return time.Now().UTC()
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

// Exchange converts a grant into a live credential. Grant validation runs
// before any network call; authorization codes are consumed on first use by
// the platform.
func (c *Client) Exchange(ctx context.Context, grant core.Grant) (core.Credential, error) {
	if c == nil {
		return core.Credential{}, fmt.Errorf("leadconnector: client is nil")
	}
	if grant == nil {
		return core.Credential{}, core.BadGrantError("leadconnector: grant is required")
	}
	if err := grant.Validate(); err != nil {
		return core.Credential{}, err
	}

	form := url.Values{}
	form.Set("grant_type", grant.GrantType())
	switch typed := grant.(type) {
	case core.AuthorizationCodeGrant:
		form.Set("code", strings.TrimSpace(typed.Code))
		if redirectURI := strings.TrimSpace(typed.RedirectURI); redirectURI != "" {
			form.Set("redirect_uri", redirectURI)
		}
	case core.RefreshTokenGrant:
		form.Set("refresh_token", strings.TrimSpace(typed.RefreshToken))
	default:
		return core.Credential{}, core.BadGrantError(
			fmt.Sprintf("leadconnector: unsupported grant type %q", grant.GrantType()),
		)
	}

	payload, err := c.postTokenForm(ctx, c.cfg.TokenURL, form, "")
	if err != nil {
		return core.Credential{}, err
	}

	subjectID := payload.CompanyID
	if grant.Subject() == core.SubjectLocation {
		subjectID = payload.LocationID
	}
	return core.Credential{
		SubjectType:  grant.Subject(),
		SubjectID:    strings.TrimSpace(subjectID),
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
		ExpiresAt:    c.resolveExpiresAt(payload.ExpiresIn),
		UserID:       strings.TrimSpace(payload.UserID),
	}, nil
}

// ExchangeLocationToken mints a location credential from an installed
// company's bearer token.
func (c *Client) ExchangeLocationToken(
	ctx context.Context,
	companyID string,
	locationID string,
	companyToken string,
) (core.Credential, error) {
	if c == nil {
		return core.Credential{}, fmt.Errorf("leadconnector: client is nil")
	}
	companyID = strings.TrimSpace(companyID)
	locationID = strings.TrimSpace(locationID)
	companyToken = strings.TrimSpace(companyToken)
	if companyID == "" || locationID == "" {
		return core.Credential{}, core.BadGrantError("leadconnector: company id and location id are required")
	}
	if companyToken == "" {
		return core.Credential{}, core.BadGrantError("leadconnector: company access token is required")
	}
	if c.cfg.LocationTokenURL == "" {
		return core.Credential{}, fmt.Errorf("leadconnector: location token url is not configured")
	}

	form := url.Values{}
	form.Set("companyId", companyID)
	form.Set("locationId", locationID)

	payload, err := c.postTokenForm(ctx, c.cfg.LocationTokenURL, form, companyToken)
	if err != nil {
		return core.Credential{}, err
	}

	subjectID := strings.TrimSpace(payload.LocationID)
	if subjectID == "" {
		subjectID = locationID
	}
	return core.Credential{
		SubjectType:  core.SubjectLocation,
		SubjectID:    subjectID,
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
		ExpiresAt:    c.resolveExpiresAt(payload.ExpiresIn),
		UserID:       strings.TrimSpace(payload.UserID),
	}, nil
}

// ListInstalledLocations pages through the installed-locations listing for a
// company. Only locations that currently have the app installed come back.
func (c *Client) ListInstalledLocations(
	ctx context.Context,
	companyID string,
	companyToken string,
) ([]core.LocationSummary, error) {
	if c == nil {
		return nil, fmt.Errorf("leadconnector: client is nil")
	}
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return nil, core.BadGrantError("leadconnector: company id is required")
	}
	if c.cfg.InstalledLocationsURL == "" {
		return nil, fmt.Errorf("leadconnector: installed locations url is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	out := []core.LocationSummary{}
	skip := 0
	for {
		query := url.Values{}
		query.Set("companyId", companyID)
		if c.cfg.AppID != "" {
			query.Set("appId", c.cfg.AppID)
		}
		query.Set("limit", strconv.Itoa(c.cfg.PageLimit))
		query.Set("isInstalled", installedLocationsFilter)
		if skip > 0 {
			query.Set("skip", strconv.Itoa(skip))
		}

		requestCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		httpReq, err := http.NewRequestWithContext(
			requestCtx,
			http.MethodGet,
			c.cfg.InstalledLocationsURL+"?"+query.Encode(),
			nil,
		)
		if err != nil {
			cancel()
			return nil, err
		}
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("Version", "2021-07-28")
		if companyToken = strings.TrimSpace(companyToken); companyToken != "" {
			httpReq.Header.Set("Authorization", "Bearer "+companyToken)
		}

		body, status, err := c.do(httpReq)
		cancel()
		if err != nil {
			return nil, err
		}
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return nil, core.UpstreamError(status, string(body))
		}

		var decoded struct {
			Locations []struct {
				ID      string `json:"_id"`
				Name    string `json:"name"`
				Address string `json:"address"`
			} `json:"locations"`
		}
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("leadconnector: decode installed locations: %w", err)
		}

		for _, loc := range decoded.Locations {
			id := strings.TrimSpace(loc.ID)
			if id == "" {
				continue
			}
			out = append(out, core.LocationSummary{
				ID:      id,
				Name:    strings.TrimSpace(loc.Name),
				Address: strings.TrimSpace(loc.Address),
			})
		}

		if len(decoded.Locations) < c.cfg.PageLimit {
			return out, nil
		}
		skip += len(decoded.Locations)
	}
}

func (c *Client) postTokenForm(
	ctx context.Context,
	endpoint string,
	form url.Values,
	bearer string,
) (tokenEndpointPayload, error) {
	if c.httpClient == nil {
		return tokenEndpointPayload{}, fmt.Errorf("leadconnector: http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	values := url.Values{}
	for key, items := range form {
		if strings.TrimSpace(key) == "" {
			continue
		}
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	values.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		values.Set("client_secret", c.cfg.ClientSecret)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		endpoint,
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if bearer = strings.TrimSpace(bearer); bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	body, status, err := c.do(httpReq)
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return tokenEndpointPayload{}, core.UpstreamError(status, string(body))
	}

	payload, parseErr := parseTokenPayload(body)
	if parseErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("leadconnector: decode token response: %w", parseErr)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenEndpointPayload{}, core.UpstreamError(status, "token response missing access token")
	}
	return payload, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("leadconnector: request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return nil, 0, fmt.Errorf("leadconnector: read response: %w", readErr)
	}
	if int64(len(body)) > maxResponseBodyBytes {
		return nil, 0, fmt.Errorf("leadconnector: response exceeds %d bytes", maxResponseBodyBytes)
	}
	return body, response.StatusCode, nil
}

func parseTokenPayload(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	return tokenEndpointPayload{
		AccessToken:  readAnyString(decoded["access_token"]),
		RefreshToken: readAnyString(decoded["refresh_token"]),
		ExpiresIn:    readAnyInt64(decoded["expires_in"]),
		CompanyID:    readAnyString(decoded["companyId"]),
		LocationID:   readAnyString(decoded["locationId"]),
		UserID:       readAnyString(decoded["userId"]),
	}, nil
}

// resolveExpiresAt anchors the provider ttl to receipt time, in unix seconds.
func (c *Client) resolveExpiresAt(expiresIn int64) int64 {
	if expiresIn <= 0 {
		return 0
	}
	return c.cfg.Now().UTC().Unix() + expiresIn
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatParsed, floatErr := typed.Float64()
		if floatErr == nil {
			return int64(floatParsed)
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

var (
	_ core.CredentialExchanger    = (*Client)(nil)
	_ core.LocationTokenExchanger = (*Client)(nil)
	_ core.LocationDirectory      = (*Client)(nil)
)
