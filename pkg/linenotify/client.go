package linenotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/temirov/linenotify/pkg/logging"
)

const (
	// DefaultOAuthAPIBase hosts the authorization and token endpoints.
	DefaultOAuthAPIBase = "https://notify-bot.line.me"
	// DefaultAPIBase hosts the notify, status and revoke endpoints.
	DefaultAPIBase = "https://notify-api.line.me"

	pathAuthorize = "/oauth/authorize"
	pathToken     = "/oauth/token"
	pathNotify    = "/api/notify"
	pathStatus    = "/api/status"
	pathRevoke    = "/api/revoke"

	defaultRequestTimeout = 10 * time.Second
	userAgent             = "linenotify-go"
)

// Settings configures a Client. ClientID and ClientSecret are required by the
// service but are not validated locally.
type Settings struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	OAuthBaseURL string
	APIBaseURL   string
	HTTPClient   *http.Client
}

// Client issues LINE Notify API calls. It holds no per-call state and is
// safe for concurrent use once its base URLs are set.
type Client struct {
	// OAuthAPIBase and APIBase may be repointed, e.g. at an httptest server.
	OAuthAPIBase string
	APIBase      string

	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates a Client from settings. A nil logger discards output.
func NewClient(logger *slog.Logger, settings Settings) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	httpClient := settings.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	oauthBase := strings.TrimRight(settings.OAuthBaseURL, "/")
	if oauthBase == "" {
		oauthBase = DefaultOAuthAPIBase
	}
	apiBase := strings.TrimRight(settings.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Client{
		OAuthAPIBase: oauthBase,
		APIBase:      apiBase,
		clientID:     settings.ClientID,
		clientSecret: settings.ClientSecret,
		redirectURI:  settings.RedirectURI,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// ClientID returns the application id the client was built with.
func (clientInstance *Client) ClientID() string {
	return clientInstance.clientID
}

// RedirectURI returns the default redirect URI.
func (clientInstance *Client) RedirectURI() string {
	return clientInstance.redirectURI
}

// ExchangeToken trades an authorization code for an access token. An empty
// redirectURIOverride falls back to the configured redirect URI.
func (clientInstance *Client) ExchangeToken(ctx context.Context, code string, redirectURIOverride string) (TokenResult, error) {
	redirectURI := redirectURIOverride
	if redirectURI == "" {
		redirectURI = clientInstance.redirectURI
	}
	formData := url.Values{}
	formData.Set("grant_type", "authorization_code")
	formData.Set("code", code)
	formData.Set("redirect_uri", redirectURI)
	formData.Set("client_id", clientInstance.clientID)
	formData.Set("client_secret", clientInstance.clientSecret)

	var tokenResult TokenResult
	_, err := clientInstance.do(ctx, apiCall{
		operation:   "exchange token",
		method:      http.MethodPost,
		endpoint:    clientInstance.OAuthAPIBase + pathToken,
		body:        strings.NewReader(formData.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &tokenResult)
	if err != nil {
		return TokenResult{}, err
	}
	return tokenResult, nil
}

// SendNotification posts message to the target bound to accessToken.
// options may be nil.
func (clientInstance *Client) SendNotification(ctx context.Context, accessToken string, message string, options *NotifyOptions) (NotifyResult, error) {
	body, contentType, buildErr := buildNotifyForm(message, options)
	if buildErr != nil {
		return NotifyResult{}, transportError("send notification", buildErr)
	}

	var notifyResult NotifyResult
	header, err := clientInstance.do(ctx, apiCall{
		operation:   "send notification",
		method:      http.MethodPost,
		endpoint:    clientInstance.APIBase + pathNotify,
		accessToken: accessToken,
		bearer:      true,
		body:        body,
		contentType: contentType,
	}, &notifyResult)
	if err != nil {
		return NotifyResult{}, err
	}
	notifyResult.RateLimit = parseRateLimit(header)
	return notifyResult, nil
}

// GetStatus reports the validity and target of accessToken.
func (clientInstance *Client) GetStatus(ctx context.Context, accessToken string) (StatusResult, error) {
	var statusResult StatusResult
	header, err := clientInstance.do(ctx, apiCall{
		operation:   "get status",
		method:      http.MethodGet,
		endpoint:    clientInstance.APIBase + pathStatus,
		accessToken: accessToken,
		bearer:      true,
	}, &statusResult)
	if err != nil {
		return StatusResult{}, err
	}
	statusResult.RateLimit = parseRateLimit(header)
	return statusResult, nil
}

// Revoke invalidates accessToken on the service. Callers holding the token
// elsewhere must discard it themselves.
func (clientInstance *Client) Revoke(ctx context.Context, accessToken string) (NotifyResult, error) {
	var revokeResult NotifyResult
	header, err := clientInstance.do(ctx, apiCall{
		operation:   "revoke",
		method:      http.MethodPost,
		endpoint:    clientInstance.APIBase + pathRevoke,
		accessToken: accessToken,
		bearer:      true,
	}, &revokeResult)
	if err != nil {
		return NotifyResult{}, err
	}
	revokeResult.RateLimit = parseRateLimit(header)
	return revokeResult, nil
}

type apiCall struct {
	operation   string
	method      string
	endpoint    string
	accessToken string
	bearer      bool
	body        io.Reader
	contentType string
}

// do performs one round trip and decodes the JSON body into destination
// regardless of the HTTP status; the service reports failures in-band.
func (clientInstance *Client) do(ctx context.Context, call apiCall, destination any) (http.Header, error) {
	requestInstance, requestError := http.NewRequestWithContext(ctx, call.method, call.endpoint, call.body)
	if requestError != nil {
		return nil, transportError(call.operation, requestError)
	}
	if call.contentType != "" {
		requestInstance.Header.Set("Content-Type", call.contentType)
	}
	if call.bearer {
		requestInstance.Header.Set("Authorization", "Bearer "+call.accessToken)
	}
	requestInstance.Header.Set("Accept", "application/json")
	requestInstance.Header.Set("User-Agent", userAgent)

	clientInstance.logger.Debug("LINE Notify request", "operation", call.operation, "method", call.method, "url", call.endpoint)

	responseInstance, responseError := clientInstance.httpClient.Do(requestInstance)
	if responseError != nil {
		return nil, transportError(call.operation, responseError)
	}
	defer responseInstance.Body.Close()

	responseBody, readError := io.ReadAll(responseInstance.Body)
	if readError != nil {
		return nil, transportError(call.operation, readError)
	}
	clientInstance.logger.Debug("LINE Notify response", "operation", call.operation, "status", responseInstance.StatusCode, "bytes", len(responseBody))

	if decodeErr := json.Unmarshal(responseBody, destination); decodeErr != nil {
		return nil, decodeError(call.operation, fmt.Errorf("http %d: %w", responseInstance.StatusCode, decodeErr))
	}
	return responseInstance.Header, nil
}

func buildNotifyForm(message string, options *NotifyOptions) (io.Reader, string, error) {
	var buffer bytes.Buffer
	formWriter := multipart.NewWriter(&buffer)

	if err := formWriter.WriteField("message", message); err != nil {
		return nil, "", err
	}
	if options != nil {
		if err := writeNotifyOptions(formWriter, *options); err != nil {
			return nil, "", err
		}
	}
	if err := formWriter.Close(); err != nil {
		return nil, "", err
	}
	return &buffer, formWriter.FormDataContentType(), nil
}

func writeNotifyOptions(formWriter *multipart.Writer, options NotifyOptions) error {
	textFields := []struct {
		name  string
		value string
	}{
		{"imageThumbnail", options.ImageThumbnail},
		{"imageFullsize", options.ImageFullsize},
		{"stickerPackageId", nonZeroIntField(options.StickerPackageID)},
		{"stickerId", nonZeroIntField(options.StickerID)},
	}
	for _, field := range textFields {
		if field.value == "" {
			continue
		}
		if err := formWriter.WriteField(field.name, field.value); err != nil {
			return err
		}
	}
	if options.NotificationDisabled {
		if err := formWriter.WriteField("notificationDisabled", "true"); err != nil {
			return err
		}
	}
	if options.ImageFile != nil && options.ImageFile.Content != nil {
		fileName := options.ImageFile.Name
		if fileName == "" {
			fileName = "image"
		}
		partWriter, err := formWriter.CreateFormFile("imageFile", fileName)
		if err != nil {
			return err
		}
		if _, err := io.Copy(partWriter, options.ImageFile.Content); err != nil {
			return fmt.Errorf("read image file: %w", err)
		}
	}
	return nil
}

// nonZeroIntField renders value, or "" when it is zero so the field is skipped.
func nonZeroIntField(value int) string {
	if value == 0 {
		return ""
	}
	return strconv.Itoa(value)
}
