// Package stream talks to the remote video host (a Cloudflare Stream
// compatible API): direct tus upload creation, signed playback tokens, HLS URL
// construction and webhook verification.
package stream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/outerfields/platform/pkg/common/httpclient"
	"github.com/outerfields/platform/pkg/common/logger"
	"golang.org/x/oauth2"
)

// MaxDirectUploadBytes is the largest file the host accepts for a direct
// creator upload (30 GiB).
const MaxDirectUploadBytes int64 = 30 * 1024 * 1024 * 1024

const (
	TusResumableVersion = "1.0.0"
	defaultUploadWindow = time.Hour
	uploadBaseURL       = "https://upload.videodelivery.net"
	defaultFileName     = "Outerfields Upload"
)

var (
	ErrNotConfigured   = errors.New("stream client is not configured")
	ErrInvalidLength   = errors.New("upload length must be a positive integer")
	ErrUploadTooLarge  = fmt.Errorf("upload exceeds max supported size (%d bytes)", MaxDirectUploadBytes)
	ErrMissingUploadID = errors.New("missing Location or stream-media-id in direct upload response")
	ErrMissingToken    = errors.New("playback token response was missing token")
)

type Options struct {
	APIBaseURL     string
	AccountID      string
	APIToken       string
	CustomerCode   string
	AllowedOrigins []string
	Timeout        time.Duration
	HTTPClient     *http.Client
}

type Client struct {
	baseURL        string
	accountID      string
	customerCode   string
	allowedOrigins []string
	timeout        time.Duration
	http           *http.Client
}

// NewClient builds a client whose requests carry the API token as a bearer
// credential.
func NewClient(opts Options) (*Client, error) {
	if opts.AccountID == "" || opts.APIToken == "" || opts.CustomerCode == "" {
		return nil, ErrNotConfigured
	}

	base := opts.HTTPClient
	if base == nil {
		base = httpclient.New(opts.Timeout)
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: opts.APIToken,
		TokenType:   "Bearer",
	}))
	authed.Timeout = base.Timeout

	baseURL := strings.TrimRight(opts.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.cloudflare.com/client/v4"
	}

	return &Client{
		baseURL:        baseURL,
		accountID:      opts.AccountID,
		customerCode:   opts.CustomerCode,
		allowedOrigins: opts.AllowedOrigins,
		timeout:        opts.Timeout,
		http:           authed,
	}, nil
}

type DirectUploadInput struct {
	UploadLength       int64
	FileName           string
	CreatorID          string
	MaxDurationSeconds int
	PlaybackPolicy     string
	Meta               map[string]string
}

type DirectUpload struct {
	StreamUID string
	UploadURL string
	ExpiresAt time.Time
}

// CreateDirectUpload reserves a resumable upload slot on the host. The client
// then sends bytes straight to UploadURL. It is not retried: a second call
// would reserve a second asset.
func (c *Client) CreateDirectUpload(ctx context.Context, in DirectUploadInput) (*DirectUpload, error) {
	if in.UploadLength <= 0 {
		return nil, ErrInvalidLength
	}
	if in.UploadLength > MaxDirectUploadBytes {
		return nil, ErrUploadTooLarge
	}

	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	endpoint := fmt.Sprintf("%s/accounts/%s/stream?direct_user=true", c.baseURL, url.PathEscape(c.accountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Tus-Resumable", TusResumableVersion)
	req.Header.Set("Upload-Length", strconv.FormatInt(in.UploadLength, 10))
	req.Header.Set("Upload-Metadata", encodeUploadMetadata(c.uploadMetadata(in)))
	if in.CreatorID != "" {
		req.Header.Set("Upload-Creator", in.CreatorID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("initializing direct upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("initializing direct upload: %w", &httpclient.StatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	location := resp.Header.Get("Location")
	streamUID := resp.Header.Get("stream-media-id")
	if location == "" || streamUID == "" {
		return nil, ErrMissingUploadID
	}

	expiresAt := time.Now().Add(defaultUploadWindow)
	if raw := resp.Header.Get("stream-media-expiry"); raw != "" {
		if parsed, perr := time.Parse(time.RFC3339, raw); perr == nil {
			expiresAt = parsed
		}
	}

	logger.WithFields(map[string]interface{}{
		"stream_uid":    streamUID,
		"upload_length": in.UploadLength,
	}).Info("Direct upload reserved")

	return &DirectUpload{
		StreamUID: streamUID,
		UploadURL: normalizeUploadLocation(location),
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

type apiEnvelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result json.RawMessage `json:"result"`
}

// CreatePlaybackToken asks the host for a signed token scoped to one asset
// that expires at expiresAt. The token is a credential and is never logged.
func (c *Client) CreatePlaybackToken(ctx context.Context, streamUID string, expiresAt time.Time) (string, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	endpoint := fmt.Sprintf("%s/accounts/%s/stream/%s/token", c.baseURL, url.PathEscape(c.accountID), url.PathEscape(streamUID))
	payload, err := json.Marshal(map[string]int64{"exp": expiresAt.Unix()})
	if err != nil {
		return "", err
	}

	var token string
	err = httpclient.Retry(ctx, 3, 200*time.Millisecond, httpclient.IsRetriable, func() error {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
		if rerr != nil {
			return rerr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, rerr := c.http.Do(req)
		if rerr != nil {
			return rerr
		}
		defer resp.Body.Close()

		var result struct {
			Token string `json:"token"`
		}
		if rerr := decodeEnvelope(resp, &result); rerr != nil {
			return rerr
		}
		token = result.Token
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("creating playback token: %w", err)
	}
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// PublicHLSURL is the unsigned manifest URL for public assets.
func (c *Client) PublicHLSURL(streamUID string) string {
	return fmt.Sprintf("https://customer-%s.cloudflarestream.com/%s/manifest/video.m3u8", c.customerCode, streamUID)
}

// SignedHLSURL embeds a playback token in place of the asset id.
func (c *Client) SignedHLSURL(token string) string {
	return fmt.Sprintf("https://customer-%s.cloudflarestream.com/%s/manifest/video.m3u8", c.customerCode, token)
}

func (c *Client) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) uploadMetadata(in DirectUploadInput) map[string]string {
	meta := map[string]string{"name": in.FileName}
	if meta["name"] == "" {
		meta["name"] = defaultFileName
	}
	if in.MaxDurationSeconds > 0 {
		meta["maxdurationseconds"] = strconv.Itoa(in.MaxDurationSeconds)
	}
	if in.PlaybackPolicy == "private" {
		meta["requiresignedurls"] = "true"
	}
	if len(c.allowedOrigins) > 0 {
		if encoded, err := json.Marshal(c.allowedOrigins); err == nil {
			meta["allowedorigins"] = string(encoded)
		}
	}
	for k, v := range in.Meta {
		meta[k] = v
	}
	return meta
}

// encodeUploadMetadata renders the tus Upload-Metadata header: comma separated
// "key base64(value)" pairs, empty values dropped. Keys are sorted so the
// header is stable.
func encodeUploadMetadata(meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for k, v := range meta {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+" "+base64.StdEncoding.EncodeToString([]byte(meta[k])))
	}
	return strings.Join(pairs, ",")
}

func normalizeUploadLocation(location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	if !strings.HasPrefix(location, "/") {
		location = "/" + location
	}
	return uploadBaseURL + location
}

func decodeEnvelope(resp *http.Response, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &httpclient.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return fmt.Errorf("decoding api response: %w", err)
	}

	if resp.StatusCode >= 300 || !env.Success {
		messages := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			messages = append(messages, e.Message)
		}
		msg := strings.Join(messages, ", ")
		if msg == "" {
			msg = "Cloudflare API error"
		}
		return &httpclient.StatusError{StatusCode: resp.StatusCode, Body: msg}
	}

	return json.Unmarshal(env.Result, dst)
}
