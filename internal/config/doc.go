// Package config resolves binshim settings.
//
// # Sources
//
// Settings come from three layers, highest precedence first:
//
//  1. BINSHIM_* environment variables (BINSHIM_HOME, BINSHIM_VERIFY, ...)
//  2. <home>/config.lua, a Lua file evaluated in a sandbox
//  3. Built-in defaults
//
// Layering is done with viper. The home directory that locates the config
// file is taken from the environment or defaults.
//
// # Config file
//
// The file assigns a global table named binshim. A read-only platform
// table describing the host is available, so values can depend on it:
//
//	binshim = {
//	    verify = "required",
//	    gpg_keyring = "/etc/binshim/release-keys.asc",
//	    timeout = "2m",
//	    proxy = platform.is_windows and "http://proxy.corp:3128" or nil,
//	}
//
// Nil values leave a setting unset. Unknown keys and wrongly typed values
// are a *ParseError.
//
// # Sandbox
//
// The Lua VM (gopher-lua, Lua 5.1) has no os, io, debug or module loading.
// Evaluation is bounded by a call stack limit, a registry limit and a
// timeout, so a runaway loop in a config file fails instead of hanging
// the wrapped tool.
package config
