package types

import (
	"strings"
	"time"
)

// Mode constants for gateway operation
const (
	ModeLocal  = "local"  // In-memory repositories, no Redis/Postgres
	ModeRemote = "remote" // Full infrastructure
)

// AppConfig is the root configuration for the doxen gateway
type AppConfig struct {
	Mode       string `key:"mode" json:"mode"` // "local" or "remote"
	DebugMode  bool   `key:"debugMode" json:"debug_mode"`
	PrettyLogs bool   `key:"prettyLogs" json:"pretty_logs"`

	Database  DatabaseConfig  `key:"database" json:"database"`
	Gateway   GatewayConfig   `key:"gateway" json:"gateway"`
	Auth      AuthConfig      `key:"auth" json:"auth"`
	OAuth     OAuthConfig     `key:"oauth" json:"oauth"`
	Providers ProvidersConfig `key:"providers" json:"providers"`
	Imports   ImportsConfig   `key:"imports" json:"imports"`
	Storage   StorageConfig   `key:"storage" json:"storage"`
}

// IsLocalMode returns true if running in local mode (no Redis/Postgres)
func (c *AppConfig) IsLocalMode() bool {
	return c.Mode == ModeLocal
}

// ----------------------------------------------------------------------------
// Database Configuration
// ----------------------------------------------------------------------------

type DatabaseConfig struct {
	Redis    RedisConfig    `key:"redis" json:"redis"`
	Postgres PostgresConfig `key:"postgres" json:"postgres"`
}

type RedisMode string

const (
	RedisModeSingle  RedisMode = "single"
	RedisModeCluster RedisMode = "cluster"
)

type RedisConfig struct {
	Mode               RedisMode     `key:"mode" json:"mode"`
	Addrs              []string      `key:"addrs" json:"addrs"`
	Username           string        `key:"username" json:"username"`
	Password           string        `key:"password" json:"password"`
	ClientName         string        `key:"clientName" json:"client_name"`
	EnableTLS          bool          `key:"enableTLS" json:"enable_tls"`
	InsecureSkipVerify bool          `key:"insecureSkipVerify" json:"insecure_skip_verify"`
	PoolSize           int           `key:"poolSize" json:"pool_size"`
	MinIdleConns       int           `key:"minIdleConns" json:"min_idle_conns"`
	DialTimeout        time.Duration `key:"dialTimeout" json:"dial_timeout"`
	ReadTimeout        time.Duration `key:"readTimeout" json:"read_timeout"`
	WriteTimeout       time.Duration `key:"writeTimeout" json:"write_timeout"`
	MaxRetries         int           `key:"maxRetries" json:"max_retries"`
}

type PostgresConfig struct {
	Host            string        `key:"host" json:"host"`
	Port            int           `key:"port" json:"port"`
	User            string        `key:"user" json:"user"`
	Password        string        `key:"password" json:"password"`
	Database        string        `key:"database" json:"database"`
	SSLMode         string        `key:"sslMode" json:"ssl_mode"`
	MaxOpenConns    int           `key:"maxOpenConns" json:"max_open_conns"`
	MaxIdleConns    int           `key:"maxIdleConns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `key:"connMaxLifetime" json:"conn_max_lifetime"`
}

// ----------------------------------------------------------------------------
// Gateway Configuration
// ----------------------------------------------------------------------------

type GatewayConfig struct {
	HTTP            HTTPConfig    `key:"http" json:"http"`
	ShutdownTimeout time.Duration `key:"shutdownTimeout" json:"shutdown_timeout"`
}

type HTTPConfig struct {
	Host           string        `key:"host" json:"host"`
	Port           int           `key:"port" json:"port"`
	RequestTimeout time.Duration `key:"requestTimeout" json:"request_timeout"`
	CORS           CORSConfig    `key:"cors" json:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `key:"allowOrigins" json:"allow_origins"`
	AllowedMethods []string `key:"allowMethods" json:"allow_methods"`
	AllowedHeaders []string `key:"allowHeaders" json:"allow_headers"`
}

// ----------------------------------------------------------------------------
// Identity
// ----------------------------------------------------------------------------

// AuthConfig configures validation of the bearer identity token sent by the UI.
type AuthConfig struct {
	JWTSecret string `key:"jwtSecret" json:"jwt_secret"`
	Issuer    string `key:"issuer" json:"issuer"` // Optional, checked when set
}

// ----------------------------------------------------------------------------
// OAuth Configuration
// ----------------------------------------------------------------------------

type OAuthConfig struct {
	Google      OAuthClientConfig `key:"google" json:"google"`
	Slack       OAuthClientConfig `key:"slack" json:"slack"`
	StateSecret string            `key:"stateSecret" json:"state_secret"`
	StateTTL    time.Duration     `key:"stateTTL" json:"state_ttl"`
}

// OAuthClientConfig holds the registered OAuth application for one provider.
type OAuthClientConfig struct {
	ClientID     string `key:"clientId" json:"client_id"`
	ClientSecret string `key:"clientSecret" json:"client_secret"`
	RedirectURL  string `key:"redirectUrl" json:"redirect_url"` // e.g., http://localhost:8080/api/v1/gmail/callback
}

func (c OAuthClientConfig) IsConfigured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// ----------------------------------------------------------------------------
// Provider API behaviour
// ----------------------------------------------------------------------------

type ProvidersConfig struct {
	HTTPTimeout          time.Duration `key:"httpTimeout" json:"http_timeout"`
	RefreshMargin        time.Duration `key:"refreshMargin" json:"refresh_margin"`
	DefaultTokenLifetime time.Duration `key:"defaultTokenLifetime" json:"default_token_lifetime"`
	GmailListMax         int           `key:"gmailListMax" json:"gmail_list_max"`
	SlackMessageLimit    int           `key:"slackMessageLimit" json:"slack_message_limit"`
	FanoutConcurrency    int           `key:"fanoutConcurrency" json:"fanout_concurrency"`
	RequestsPerSecond    float64       `key:"requestsPerSecond" json:"requests_per_second"`
}

// ----------------------------------------------------------------------------
// Imports
// ----------------------------------------------------------------------------

// DedupPolicy controls what happens when the same conversation is imported
// into the same project more than once.
type DedupPolicy string

const (
	DedupAllow   DedupPolicy = "allow"   // Always create a new document
	DedupSkip    DedupPolicy = "skip"    // Return the existing document
	DedupReplace DedupPolicy = "replace" // Delete the existing document, then create
)

func ParseDedupPolicy(s string) DedupPolicy {
	switch DedupPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case DedupSkip:
		return DedupSkip
	case DedupReplace:
		return DedupReplace
	default:
		return DedupAllow
	}
}

type ImportsConfig struct {
	DedupPolicy string `key:"dedupPolicy" json:"dedup_policy"`
}

// ----------------------------------------------------------------------------
// Storage Configuration
// ----------------------------------------------------------------------------

type StorageConfig struct {
	S3 S3Config `key:"s3" json:"s3"`
}

type S3Config struct {
	Bucket         string `key:"bucket" json:"bucket"`
	Region         string `key:"region" json:"region"`
	Endpoint       string `key:"endpoint" json:"endpoint"`
	AccessKey      string `key:"accessKey" json:"access_key"`
	SecretKey      string `key:"secretKey" json:"secret_key"`
	ForcePathStyle bool   `key:"forcePathStyle" json:"force_path_style"`
}

func (c S3Config) IsConfigured() bool {
	return c.Bucket != ""
}
