package config

// Setting keys. The same names are used in the Lua config table and, upper
// cased with the BINSHIM_ prefix, in the environment.
const (
	KeyHome                = "home"
	KeyLogLevel            = "log_level"
	KeyProxy               = "proxy"
	KeyVerify              = "verify"
	KeyGPGKeyring          = "gpg_keyring"
	KeySigstoreIdentity    = "sigstore_identity"
	KeySigstoreIssuer      = "sigstore_issuer"
	KeySigstoreTrustedRoot = "sigstore_trusted_root"
	KeyTimeout             = "timeout"
	KeyRetries             = "retries"
)

const (
	// EnvPrefix prefixes every environment variable read by Load
	EnvPrefix = "BINSHIM"
	// FileName is the config file looked up in the home directory
	FileName = "config.lua"

	luaGlobal = "binshim"
)

// stringKeys hold plain string values.
var stringKeys = map[string]bool{
	KeyHome:                true,
	KeyLogLevel:            true,
	KeyProxy:               true,
	KeyVerify:              true,
	KeyGPGKeyring:          true,
	KeySigstoreIdentity:    true,
	KeySigstoreIssuer:      true,
	KeySigstoreTrustedRoot: true,
}
