package oauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateCodecRoundTrip(t *testing.T) {
	codec := NewStateCodec("secret", 0)
	assert.Equal(t, DefaultStateTTL, codec.ttl)

	token, err := codec.Encode(StatePayload{UserId: "user-1", ReturnUrl: "/settings", Provider: "slack"})
	require.NoError(t, err)

	payload, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, &StatePayload{UserId: "user-1", ReturnUrl: "/settings", Provider: "slack"}, payload)
}

func TestStateCodecExpired(t *testing.T) {
	codec := NewStateCodec("secret", time.Minute)
	issued := time.Now()
	codec.now = func() time.Time { return issued }

	token, err := codec.Encode(StatePayload{UserId: "user-1"})
	require.NoError(t, err)

	codec.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = codec.Decode(token)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateCodecTampered(t *testing.T) {
	codec := NewStateCodec("secret", time.Minute)
	token, err := codec.Encode(StatePayload{UserId: "user-1"})
	require.NoError(t, err)

	_, err = codec.Decode(token + "x")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = codec.Decode("")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestNormalizeReturnUrl(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "/", false},
		{"/projects/1", "/projects/1", false},
		{"https://app.example/settings?x=1", "https://app.example/settings?x=1", false},
		{"//evil.example/path", "", true},
		{"javascript:alert(1)", "", true},
		{"ftp://files.example", "", true},
		{"relative/path", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizeReturnUrl(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestAppendQuery(t *testing.T) {
	assert.Equal(t, "/settings?gmail_connected=true", AppendQuery("/settings", "gmail_connected", "true"))
	assert.Equal(t, "https://app.example/x?a=1&slack_error=not+allowed", AppendQuery("https://app.example/x?a=1", "slack_error", "not allowed"))
}
