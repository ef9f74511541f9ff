package config

// Lua schema field names and globals
const (
	luaGlobalProvision  = "provision"
	luaFieldRepo        = "repo"
	luaFieldTool        = "tool"
	luaFieldExecutable  = "executable"
	luaFieldAPIURL      = "api_url"
	luaFieldUserAgent   = "user_agent"
	luaFieldToken       = "token"
	luaFieldRedirects   = "redirect_budget"
	luaFieldTimeout     = "timeout"
	luaFieldPlatform    = "platform"
	luaFieldOS          = "os"
	luaFieldArch        = "arch"
	luaFieldVerify      = "verify"
	luaFieldChecksums   = "checksums"
	luaFieldKeyring     = "keyring"
	luaFieldLogLevel    = "log_level"
	luaFieldStorageRoot = "storage_root"
)

// Limits applied during validation.
const (
	// MaxFileSize bounds provision.lua.
	MaxFileSize = 1 << 20
	// MaxRedirectBudget bounds redirect_budget.
	MaxRedirectBudget = 20
	// MaxTimeoutSeconds bounds timeout.
	MaxTimeoutSeconds = 3600
)

// DefaultFileName is the settings file looked up in the config directory.
const DefaultFileName = "provision.lua"
