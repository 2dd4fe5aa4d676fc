package types

import "time"

// Connection is a stored OAuth credential set linking one user to one
// external account on one provider. Unique on (UserId, Provider, ExternalAccountId).
type Connection struct {
	Id                string            `json:"id"`
	UserId            string            `json:"user_id"`
	Provider          string            `json:"provider"`
	ExternalAccountId string            `json:"external_account_id"` // email for gmail, team id for slack
	AccountName       string            `json:"account_name"`        // email for gmail, team name for slack
	AccessToken       string            `json:"-"`
	RefreshToken      string            `json:"-"`
	ExpiresAt         *time.Time        `json:"expires_at,omitempty"`
	Scope             string            `json:"scope"`
	Extra             map[string]string `json:"extra,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// HasRefreshToken reports whether the connection can be refreshed without
// re-prompting the user.
func (c *Connection) HasRefreshToken() bool {
	return c != nil && c.RefreshToken != ""
}

// ConnectionInfo is the API view of a connection (no secrets).
type ConnectionInfo struct {
	Id                string     `json:"id"`
	Provider          string     `json:"provider"`
	ExternalAccountId string     `json:"external_account_id"`
	AccountName       string     `json:"account_name"`
	Scope             string     `json:"scope"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (c *Connection) Info() ConnectionInfo {
	return ConnectionInfo{
		Id:                c.Id,
		Provider:          c.Provider,
		ExternalAccountId: c.ExternalAccountId,
		AccountName:       c.AccountName,
		Scope:             c.Scope,
		ExpiresAt:         c.ExpiresAt,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

// IntegrationCredentials is what a provider returns from a code exchange or
// refresh, before it is attached to a user.
type IntegrationCredentials struct {
	AccessToken  string            `json:"access_token,omitempty"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	Scope        string            `json:"scope,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// AccountIdentity identifies the external account behind a set of credentials.
type AccountIdentity struct {
	ExternalAccountId string
	AccountName       string
}
