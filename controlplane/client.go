// Package controlplane is the signed RPC client to the operator's control plane:
// token issuance, per-channel policy reads/writes, rank lookups, and the channel
// roster. Every call but GetToken carries an HMAC-SHA256 signature (Signer) over
// the request timestamp, method, path, and body.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/eloward-bot/telemetry"
)

// Client talks to the control plane over HTTP. Every method except GetToken
// attaches signature headers, and all respect the context the caller
// supplies; the per-request timeout is the http.Client's, which the
// supervisor builds from config.ControlPlaneTimeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
}

// New constructs a Client. secret may be empty only for GetToken-only use (the
// token endpoint is unauthenticated); every other method returns
// ErrMissingSecret if secret was empty.
func New(baseURL, secret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	var signer *Signer
	if secret != "" {
		signer = NewSigner(secret)
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, signer: signer}
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// do builds and sends a request, signing it unless signed is false. body, if
// non-nil, is JSON-marshaled. The response body is decoded into out if out is
// non-nil and the response is 2xx.
func (c *Client) do(ctx context.Context, method, path string, body any, out any, signed bool) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "controlplane", "controlplane."+method+" "+path)
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.SetSpanSuccess(span)
		}
		span.End()
	}()

	var raw []byte
	if body != nil {
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("controlplane: marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("controlplane: build request: %w", err)
	}
	if len(raw) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	if signed {
		if c.signer == nil {
			return ErrMissingSecret
		}
		ts := time.Now().Unix()
		sig := c.signer.Sign(ts, method, path, raw)
		req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
		req.Header.Set("X-HMAC-Signature", sig)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	err = decodeResponse(resp, out)
	return err
}

func decodeResponse(resp *http.Response, out any) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode >= 400:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("controlplane: status %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("controlplane: decode response: %w", err)
	}
	return nil
}

// errNotFound is an internal sentinel translated by each caller into the
// domain-specific ErrPolicyAbsent / ErrRankAbsent, since "absent" means
// something different per endpoint.
var errNotFound = fmt.Errorf("controlplane: not found")

// TokenResult is GetToken's return value, flattened from the wire shape.
type TokenResult struct {
	Token            string
	UserLogin        string
	UserID           string
	ExpiresAt        time.Time
	NeedsRefreshSoon bool
}

// GetToken fetches the current bot OAuth token from the control plane. It is
// the one unsigned endpoint: a fresh process has no secret-derived identity
// yet, only its static client credentials, which the control plane itself
// validates out of band.
func (c *Client) GetToken(ctx context.Context) (*TokenResult, error) {
	var tr tokenResponse
	if err := c.do(ctx, http.MethodGet, "/token", nil, &tr, false); err != nil {
		return nil, err
	}
	return &TokenResult{
		Token:            tr.Token,
		UserLogin:        tr.User.Login,
		UserID:           tr.User.ID,
		ExpiresAt:        time.UnixMilli(tr.ExpiresAtMs),
		NeedsRefreshSoon: tr.NeedsRefreshSoon,
	}, nil
}

// ConfigGet fetches a channel's policy. Returns ErrPolicyAbsent on a 404.
func (c *Client) ConfigGet(ctx context.Context, channel string) (*ChannelPolicy, error) {
	body := configGetRequest{ChannelLogin: channel}
	var policy ChannelPolicy
	err := c.do(ctx, http.MethodPost, "/bot/config-get", body, &policy, true)
	if err == errNotFound {
		return nil, ErrPolicyAbsent
	}
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

// ConfigUpdate applies a partial update to a channel's policy. The control
// plane documents two aliases for this route that disagree between
// deployments, config-update and config:update; ConfigUpdate tries the
// hyphenated form first and falls back to the colon form on 404 so the bot
// works against either.
func (c *Client) ConfigUpdate(ctx context.Context, channel string, fields ConfigUpdateFields) (*ChannelPolicy, error) {
	body := configUpdateRequest{ChannelLogin: channel, Fields: fields}

	var policy ChannelPolicy
	err := c.do(ctx, http.MethodPost, "/bot/config-update", body, &policy, true)
	if err == errNotFound {
		err = c.do(ctx, http.MethodPost, "/bot/config:update", body, &policy, true)
	}
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

// FollowChannel registers the bot's intent to join channel with the control
// plane, so it is included in future Channels() rosters and policy pushes.
func (c *Client) FollowChannel(ctx context.Context, channel string) error {
	body := struct {
		ChannelLogin string `json:"channel_login"`
	}{ChannelLogin: channel}
	return c.do(ctx, http.MethodPost, "/bot/follow-channel", body, nil, true)
}

// RankGet fetches a user's rank. Returns ErrRankAbsent on a 404.
func (c *Client) RankGet(ctx context.Context, userLogin string) (*RankData, error) {
	body := rankGetRequest{UserLogin: userLogin}
	var rr rankGetResponse
	err := c.do(ctx, http.MethodPost, "/rank:get", body, &rr, true)
	if err == errNotFound {
		return nil, ErrRankAbsent
	}
	if err != nil {
		return nil, err
	}
	return &rr.RankData, nil
}

// Channels returns the full roster of channels the bot should be present in.
func (c *Client) Channels(ctx context.Context) ([]string, error) {
	var cr channelsResponse
	if err := c.do(ctx, http.MethodGet, "/channels", nil, &cr, true); err != nil {
		return nil, err
	}
	return cr.Channels, nil
}
