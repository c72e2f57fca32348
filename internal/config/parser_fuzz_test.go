package config

import (
	"context"
	"testing"
)

func FuzzParser_ParseString(f *testing.F) {
	f.Add(`binshim = { verify = "off" }`)
	f.Add(`binshim = { timeout = "30s", retries = 2 }`)
	f.Add(`binshim = { proxy = nil }`)

	parser := NewParser(nil)

	f.Fuzz(func(t *testing.T, luaCode string) {
		_, _ = parser.ParseString(context.Background(), luaCode)
	})
}
