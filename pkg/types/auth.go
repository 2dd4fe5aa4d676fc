package types

// AuthInfo contains identity information for authenticated requests.
type AuthInfo struct {
	UserId string
	Email  string
}

func (a *AuthInfo) IsAuthenticated() bool {
	return a != nil && a.UserId != ""
}

// Owns reports whether a resource owned by userId belongs to the caller.
func (a *AuthInfo) Owns(userId string) bool {
	return a.IsAuthenticated() && a.UserId == userId
}
