package controlplane

// ChannelPolicy is the per-channel moderation policy, as persisted by the control
// plane and cached locally (cache.ConfigCache). Field names match the wire JSON.
type ChannelPolicy struct {
	ChannelLogin          string `json:"channel_login"`
	Enabled               bool   `json:"enabled"`
	Mode                  string `json:"mode"` // "has_rank" | "min_rank"
	MinTier               string `json:"min_tier,omitempty"`
	MinDivision           string `json:"min_division,omitempty"`
	TimeoutSeconds        int    `json:"timeout_seconds"`
	ReasonTemplateHasRank string `json:"reason_template_has_rank"`
	ReasonTemplateMinRank string `json:"reason_template_min_rank"`
	Version               int64  `json:"version"`
	UpdatedAt             int64  `json:"updated_at"`
}

const (
	ModeHasRank = "has_rank"
	ModeMinRank = "min_rank"
)

// RankData is the rank payload nested in a successful rank-get response.
type RankData struct {
	RankTier     string `json:"rank_tier"`
	RankDivision string `json:"rank_division,omitempty"`
}

type rankGetResponse struct {
	RankData RankData `json:"rank_data"`
}

// configGetRequest is ConfigGet's request body.
type configGetRequest struct {
	ChannelLogin string `json:"channel_login"`
}

// rankGetRequest is RankGet's request body.
type rankGetRequest struct {
	UserLogin string `json:"user_login"`
}

// configUpdateRequest is ConfigUpdate's request body: the changed fields nest
// under "fields" rather than flattening into the top-level object.
type configUpdateRequest struct {
	ChannelLogin string             `json:"channel_login"`
	Fields       ConfigUpdateFields `json:"fields"`
}

type tokenResponse struct {
	Token   string `json:"token"`
	User    struct {
		Login string `json:"login"`
		ID    string `json:"id"`
	} `json:"user"`
	ExpiresAtMs       int64 `json:"expires_at"`
	ExpiresInMinutes  int   `json:"expires_in_minutes"`
	NeedsRefreshSoon  bool  `json:"needs_refresh_soon"`
}

type channelsResponse struct {
	Channels []string `json:"channels"`
}

// ConfigUpdateFields is the partial-update payload for config-update: only the
// fields the caller wants to change are set (encoding/json omits the zero rest
// via the pointer types below, so "not present" and "explicitly false/zero" are
// distinguishable on the wire).
type ConfigUpdateFields struct {
	Enabled               *bool   `json:"enabled,omitempty"`
	Mode                  *string `json:"mode,omitempty"`
	MinTier               *string `json:"min_rank_tier,omitempty"`
	MinDivision           *string `json:"min_rank_division,omitempty"`
	TimeoutSeconds        *int    `json:"timeout_seconds,omitempty"`
	ReasonTemplateHasRank *string `json:"reason_template_has_rank,omitempty"`
	ReasonTemplateMinRank *string `json:"reason_template_min_rank,omitempty"`
}
