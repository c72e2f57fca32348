package config

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Limits for config evaluation. A config file is a handful of assignments;
// anything that runs longer than evalTimeout is a mistake.
const (
	evalTimeout   = 5 * time.Second
	callStackSize = 256
	registrySize  = 8 * 1024
)

// sandboxLuaVM removes every global that reaches outside the VM:
// os and io, module loading (require, dofile, loadfile, load, loadstring)
// and debug. string, table, math and the basic functions stay.
func sandboxLuaVM(L *lua.LState) {
	for _, name := range []string{"os", "io", "require", "dofile", "loadfile", "load", "loadstring", "debug"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// newSandboxedVM creates a bounded, sandboxed Lua VM. The VM stops with an
// error once ctx is done or evalTimeout elapses. The returned cancel func
// must be called after L.Close.
func newSandboxedVM(ctx context.Context) (*lua.LState, context.CancelFunc) {
	L := lua.NewState(lua.Options{
		CallStackSize:       callStackSize,
		RegistrySize:        registrySize,
		IncludeGoStackTrace: false,
	})
	sandboxLuaVM(L)

	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	L.SetContext(ctx)
	return L, cancel
}
