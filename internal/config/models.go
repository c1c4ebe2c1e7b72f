package config

import (
	"fmt"
	"time"
)

// AnalyzerConfig controls how verdict timestamps are rendered
type AnalyzerConfig struct {
	Timezone        string
	TimestampLayout string
}

// Location resolves the configured timezone
func (a AnalyzerConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid analyzer.timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

// SourceConfig represents the configuration of the message source
type SourceConfig struct {
	Type          string
	MaxResults    int
	MaxResultsCap int
	Concurrency   int
	RetryAttempts int
	RetryBackoff  time.Duration
	SnippetLength int
}

// GmailConfig represents the configuration for the Gmail API source
type GmailConfig struct {
	CredentialsFile string
	TokenFile       string
	Query           string
	User            string
}

// IMAPConfig represents the configuration for an IMAP mailbox source
type IMAPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	Mailbox  string
}

// Address returns host:port
func (c IMAPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MboxConfig represents the configuration for a local mbox source
type MboxConfig struct {
	Path string
}

// HeaderNames are the headers added by the content filters
type HeaderNames struct {
	Score    string
	Category string
	Threat   string
	Flags    string
}

// PostfixConfig is the reinjection target of the content filter
type PostfixConfig struct {
	Enabled bool
	Address string
	Port    int
}

// ServerConfig represents the configuration of the filter front ends
type ServerConfig struct {
	FilterType         string
	ListenAddress      string
	HTTPAddress        string
	BlockThreats       bool
	Headers            HeaderNames
	Postfix            PostfixConfig
	SubjectPrefix      string
	ModifySubject      bool
	AllowlistedDomains []string
}

// CacheConfig represents the configuration of the verdict cache
type CacheConfig struct {
	Enabled          bool
	Type             string
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
}

// HistoryConfig represents the configuration of the analysis history
type HistoryConfig struct {
	Enabled bool
	Path    string
}

// ExplainerConfig selects the verdict explainer
type ExplainerConfig struct {
	Provider string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GetAnalyzer returns the analyzer configuration
func (c *Config) GetAnalyzer() AnalyzerConfig {
	return AnalyzerConfig{
		Timezone:        c.GetString("analyzer.timezone"),
		TimestampLayout: c.GetString("analyzer.timestamp_layout"),
	}
}

// GetSource returns the message source configuration
func (c *Config) GetSource() (SourceConfig, error) {
	backoff, err := c.GetDuration("source.retry_backoff")
	if err != nil {
		return SourceConfig{}, fmt.Errorf("invalid source.retry_backoff: %w", err)
	}
	return SourceConfig{
		Type:          c.GetString("source.type"),
		MaxResults:    c.GetInt("source.max_results"),
		MaxResultsCap: c.GetInt("source.max_results_cap"),
		Concurrency:   c.GetInt("source.concurrency"),
		RetryAttempts: c.GetInt("source.retry_attempts"),
		RetryBackoff:  backoff,
		SnippetLength: c.GetInt("source.snippet_length"),
	}, nil
}

// GetGmail returns the Gmail configuration
func (c *Config) GetGmail() GmailConfig {
	return GmailConfig{
		CredentialsFile: c.GetString("gmail.credentials_file"),
		TokenFile:       c.GetString("gmail.token_file"),
		Query:           c.GetString("gmail.query"),
		User:            c.GetString("gmail.user"),
	}
}

// GetIMAP returns the IMAP configuration
func (c *Config) GetIMAP() IMAPConfig {
	return IMAPConfig{
		Host:     c.GetString("imap.host"),
		Port:     c.GetInt("imap.port"),
		TLS:      c.GetBool("imap.tls"),
		Username: c.GetString("imap.username"),
		Password: c.GetString("imap.password"),
		Mailbox:  c.GetString("imap.mailbox"),
	}
}

// GetMbox returns the mbox configuration
func (c *Config) GetMbox() MboxConfig {
	return MboxConfig{Path: c.GetString("mbox.path")}
}

// GetServer returns the filter front end configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:    c.GetString("server.filter_type"),
		ListenAddress: c.GetString("server.listen_address"),
		HTTPAddress:   c.GetString("server.http_address"),
		BlockThreats:  c.GetBool("server.block_threats"),
		Headers: HeaderNames{
			Score:    c.GetString("server.headers.score"),
			Category: c.GetString("server.headers.category"),
			Threat:   c.GetString("server.headers.threat"),
			Flags:    c.GetString("server.headers.flags"),
		},
		Postfix: PostfixConfig{
			Enabled: c.GetBool("server.postfix.enabled"),
			Address: c.GetString("server.postfix.address"),
			Port:    c.GetInt("server.postfix.port"),
		},
		SubjectPrefix:      c.GetString("server.subject_prefix"),
		ModifySubject:      c.GetBool("server.modify_subject"),
		AllowlistedDomains: c.GetStringSlice("server.allowlisted_domains"),
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() (CacheConfig, error) {
	ttl, err := c.GetDuration("cache.ttl")
	if err != nil {
		return CacheConfig{}, fmt.Errorf("invalid cache.ttl: %w", err)
	}
	cleanup, err := c.GetDuration("cache.cleanup_frequency")
	if err != nil {
		return CacheConfig{}, fmt.Errorf("invalid cache.cleanup_frequency: %w", err)
	}
	return CacheConfig{
		Enabled:          c.GetBool("cache.enabled"),
		Type:             c.GetString("cache.type"),
		TTL:              ttl,
		CleanupFrequency: cleanup,
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
	}, nil
}

// GetHistory returns the history configuration
func (c *Config) GetHistory() HistoryConfig {
	return HistoryConfig{
		Enabled: c.GetBool("history.enabled"),
		Path:    c.GetString("history.path"),
	}
}

// GetExplainer returns the explainer configuration
func (c *Config) GetExplainer() ExplainerConfig {
	return ExplainerConfig{
		Provider: c.GetString("explainer.provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}
