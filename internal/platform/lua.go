package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// LuaGlobal is the name of the read-only host table visible to config files.
const LuaGlobal = "platform"

// InjectPlatformTable exposes info to Lua as the read-only global
// `platform`. Call it before evaluating user code.
//
// Besides plain fields the table carries two helpers:
//
//	platform.when(platform.is_windows, "C:/cache")      -- value or nil
//	platform.select({ linux = "a", darwin = "b" }, "c") -- by info.OS, with fallback
func InjectPlatformTable(L *lua.LState, info *Info) error {
	t := L.NewTable()

	fields := []struct {
		key   string
		value lua.LValue
	}{
		// Go naming
		{"os", lua.LString(info.OS)},
		{"arch", lua.LString(info.Arch)},
		{"arch_raw", lua.LString(info.ArchRaw)},
		{"kernel_arch", lua.LString(info.KernelArch)},
		// Release table naming
		{"os_family", lua.LString(info.OSFamily())},
		{"architecture", lua.LString(info.Architecture())},
		{"is_linux", lua.LBool(info.IsLinux())},
		{"is_macos", lua.LBool(info.IsMacOS())},
		{"is_windows", lua.LBool(info.IsWindows())},
		{"is_amd64", lua.LBool(info.IsAMD64())},
		{"is_arm64", lua.LBool(info.IsARM64())},
		{"is_apple_silicon", lua.LBool(info.IsAppleSilicon())},
		{"is_alpine", lua.LBool(info.IsAlpine())},
		{"distro", distroTable(L, info)},
		{"when", L.NewFunction(luaWhen)},
		{"select", L.NewFunction(luaSelect(info.OS))},
	}
	for _, f := range fields {
		L.SetField(t, f.key, f.value)
	}

	L.SetGlobal(LuaGlobal, readOnly(L, t))
	return nil
}

// distroTable is nil outside Linux or when the distribution is unknown.
func distroTable(L *lua.LState, info *Info) lua.LValue {
	distro := info.GetDistro()
	if distro == nil {
		return lua.LNil
	}

	t := L.NewTable()
	L.SetField(t, "id", lua.LString(distro.ID))
	L.SetField(t, "family", lua.LString(distro.Family))
	L.SetField(t, "version", lua.LString(distro.Version))
	return t
}

// luaWhen implements when(cond, value).
func luaWhen(L *lua.LState) int {
	if L.CheckBool(1) {
		L.Push(L.Get(2))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

// luaSelect implements select(choices, fallback) for the host OS.
func luaSelect(goos string) lua.LGFunction {
	return func(L *lua.LState) int {
		choices := L.CheckTable(1)
		if v := choices.RawGetString(goos); v != lua.LNil {
			L.Push(v)
			return 1
		}
		L.Push(L.Get(2))
		return 1
	}
}

// readOnly wraps t in an empty proxy whose metatable forwards reads and
// rejects writes.
func readOnly(L *lua.LState, t *lua.LTable) *lua.LTable {
	mt := L.NewTable()
	L.SetField(mt, "__index", t)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("%s is read-only", LuaGlobal)
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LString("locked"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
