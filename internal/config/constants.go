package config

// Anthropic OAuth application and endpoints.
const (
	DefaultAnthropicClientID     = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	DefaultAnthropicAuthorizeURL = "https://claude.ai/oauth/authorize"
	DefaultAnthropicTokenURL     = "https://console.anthropic.com/v1/oauth/token"
	DefaultAnthropicRedirectURL  = "https://console.anthropic.com/oauth/code/callback"
	DefaultAnthropicUsageURL     = "https://api.anthropic.com/api/oauth/usage"
	AnthropicScopes              = "org:create_api_key user:profile user:inference"
	// AnthropicBetaHeader enables the OAuth usage endpoint.
	AnthropicBetaHeader = "oauth-2025-04-20"
)

// GitHub OAuth application and endpoints.
const (
	DefaultGitHubClientID      = "178c6fc778ccc68e1d6a"
	DefaultGitHubDeviceCodeURL = "https://github.com/login/device/code"
	DefaultGitHubTokenURL      = "https://github.com/login/oauth/access_token"
	DefaultGitHubAPIURL        = "https://api.github.com"
	GitHubScopes               = "read:user user:email"
	GitHubAPIVersion           = "2022-11-28"
)

// CredentialStore backends.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
)
