// Package config reads provisioning settings from a sandboxed Lua file,
// provision.lua.
//
// # Overview
//
// The file assigns a global provision table:
//
//	provision = {
//	  repo = "clice-io/clice",
//	  tool = "clice",
//	  executable = platform.is_windows and "C:/tools/clice.exe" or nil,
//	  api_url = "https://api.github.com",
//	  storage_root = "~/.cache/clice",
//	  redirect_budget = 5,
//	  timeout = 300, -- seconds
//	  verify = { checksums = true, keyring = "~/.config/provision/release.asc" },
//	  log_level = "info",
//	}
//
// Every field is optional. A missing file yields zero Settings, which the
// caller fills with defaults.
//
// # Platform table
//
// A read-only platform table describing the real host (os, arch, is_linux,
// distro, when()) is injected before the file runs, so settings can be
// conditional. The platform field of the provision table overrides the
// os/arch used to pick release assets; it does not change the injected table.
//
// # Security Model
//
// The file runs in a restricted gopher-lua VM with no os, io, debug or
// module loading. Execution honours the caller's context, so a runaway
// loop is cancelled with it. Inline API tokens are reported by
// DetectSensitiveData so callers can warn about them.
package config
