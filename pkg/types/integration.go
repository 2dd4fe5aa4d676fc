package types

import "strings"

// Provider names as stored in the connection table and used in routes.
const (
	ProviderGmail = "gmail"
	ProviderSlack = "slack"
)

// ProviderMeta contains metadata about a supported provider
type ProviderMeta struct {
	Name        string
	DisplayName string
	SourceType  SourceType
	// Expiring is false for providers whose access tokens never expire.
	Expiring bool
}

var providers = map[string]ProviderMeta{
	ProviderGmail: {
		Name:        ProviderGmail,
		DisplayName: "Gmail",
		SourceType:  SourceTypeGmail,
		Expiring:    true,
	},
	ProviderSlack: {
		Name:        ProviderSlack,
		DisplayName: "Slack",
		SourceType:  SourceTypeSlack,
		Expiring:    false,
	},
}

// GetProviderMeta returns metadata for a provider
func GetProviderMeta(name string) (ProviderMeta, bool) {
	meta, ok := providers[strings.ToLower(name)]
	return meta, ok
}

func IsKnownProvider(name string) bool {
	_, ok := GetProviderMeta(name)
	return ok
}

// ProviderDisplayName returns the human name, falling back to the raw name.
func ProviderDisplayName(name string) string {
	if meta, ok := GetProviderMeta(name); ok {
		return meta.DisplayName
	}
	return name
}
