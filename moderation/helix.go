package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/onnwee/eloward-bot/credentials"
)

// HelixClient calls the Twitch Helix API for the operations moderation
// needs: resolving a login to a user ID, checking moderator status, and
// issuing a timeout (ban with duration). Every call builds a request with
// NewRequestWithContext, sets Client-Id and a bearer Authorization header,
// decodes JSON, and closes the body.
const defaultHelixBaseURL = "https://api.twitch.tv/helix"

type HelixClient struct {
	clientID   string
	creds      *credentials.Provider
	httpClient *http.Client
	baseURL    string
}

// NewHelixClient constructs a HelixClient. clientID is the bot's static
// Twitch app client ID; creds supplies the bearer token per call so a token
// rotation is picked up without reconstructing the client.
func NewHelixClient(clientID string, creds *credentials.Provider, httpClient *http.Client) *HelixClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HelixClient{clientID: clientID, creds: creds, httpClient: httpClient, baseURL: defaultHelixBaseURL}
}

// WithBaseURL overrides the Helix base URL, used by tests to point at a
// local httptest server instead of the real Twitch API.
func (h *HelixClient) WithBaseURL(baseURL string) *HelixClient {
	h.baseURL = baseURL
	return h
}

func (h *HelixClient) authHeaders(req *http.Request) {
	token, _ := h.creds.Current()
	req.Header.Set("Client-Id", h.clientID)
	req.Header.Set("Authorization", "Bearer "+token)
}

type helixUsersResponse struct {
	Data []struct {
		ID    string `json:"id"`
		Login string `json:"login"`
	} `json:"data"`
}

// GetUserIDs resolves multiple Twitch logins to numeric user IDs in a single
// request: Helix's /users endpoint accepts repeated login query params, so
// resolving a channel, an author, and the bot's own login costs one round
// trip instead of three. The returned map is keyed by lower-cased login;
// logins Helix did not return (typos, deactivated accounts) are simply
// absent from the map rather than erroring the whole batch.
func (h *HelixClient) GetUserIDs(ctx context.Context, logins []string) (map[string]string, error) {
	q := url.Values{}
	for _, login := range logins {
		if login != "" {
			q.Add("login", login)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/users?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("moderation: build users request: %w", err)
	}
	h.authHeaders(req)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moderation: users request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("closing helix response body", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("moderation: users request status %d: %s", resp.StatusCode, string(b))
	}

	var out helixUsersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("moderation: decode users response: %w", err)
	}
	ids := make(map[string]string, len(out.Data))
	for _, u := range out.Data {
		ids[strings.ToLower(u.Login)] = u.ID
	}
	return ids, nil
}

// GetUserID resolves a single Twitch login to its numeric user ID.
func (h *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	ids, err := h.GetUserIDs(ctx, []string{login})
	if err != nil {
		return "", err
	}
	id, ok := ids[strings.ToLower(login)]
	if !ok {
		return "", fmt.Errorf("moderation: no such user %q", login)
	}
	return id, nil
}

type helixModeratorsResponse struct {
	Data []struct {
		UserID string `json:"user_id"`
	} `json:"data"`
}

// IsModerator reports whether userID is a moderator (or the broadcaster) of
// broadcasterID's channel. Called immediately before a ban as a last-moment
// safety check, since role state can change between message receipt and
// enforcement.
func (h *HelixClient) IsModerator(ctx context.Context, broadcasterID, userID string) (bool, error) {
	if broadcasterID == userID {
		return true, nil
	}
	url := fmt.Sprintf("%s/moderation/moderators?broadcaster_id=%s&user_id=%s", h.baseURL, broadcasterID, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("moderation: build moderators request: %w", err)
	}
	h.authHeaders(req)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("moderation: moderators request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("closing helix response body", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return false, fmt.Errorf("moderation: moderators request status %d: %s", resp.StatusCode, string(b))
	}

	var out helixModeratorsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("moderation: decode moderators response: %w", err)
	}
	return len(out.Data) > 0, nil
}

type banRequestBody struct {
	Data struct {
		UserID   string `json:"user_id"`
		Duration int    `json:"duration,omitempty"`
		Reason   string `json:"reason,omitempty"`
	} `json:"data"`
}

// BanUser times out userID in broadcasterID's channel for durationSeconds
// (Helix caps this at 1209600, 14 days; a timeout_seconds of 0 from policy
// means a permanent ban and is passed through as Duration omitted).
func (h *HelixClient) BanUser(ctx context.Context, broadcasterID, moderatorID, userID string, durationSeconds int, reason string) error {
	var body banRequestBody
	body.Data.UserID = userID
	body.Data.Duration = durationSeconds
	body.Data.Reason = reason

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("moderation: marshal ban request: %w", err)
	}

	url := fmt.Sprintf("%s/moderation/bans?broadcaster_id=%s&moderator_id=%s", h.baseURL, broadcasterID, moderatorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("moderation: build ban request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	h.authHeaders(req)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("moderation: ban request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("closing helix response body", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("moderation: ban request status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
