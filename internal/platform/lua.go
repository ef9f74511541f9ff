package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectPlatformTable exposes info to a settings script as a read-only
// global table named "platform". Call it before running any user code.
func InjectPlatformTable(L *lua.LState, info *Info) error {
	tbl := L.NewTable()

	strs := map[string]string{
		"os":       info.OS,
		"arch":     info.Arch,
		"arch_raw": info.ArchRaw,
	}
	for k, v := range strs {
		L.SetField(tbl, k, lua.LString(v))
	}

	bools := map[string]bool{
		"is_linux":         info.IsLinux(),
		"is_macos":         info.IsMacOS(),
		"is_windows":       info.IsWindows(),
		"is_x64":           info.IsX64(),
		"is_arm64":         info.IsARM64(),
		"is_apple_silicon": info.IsAppleSilicon(),
	}
	for k, v := range bools {
		L.SetField(tbl, k, lua.LBool(v))
	}

	if distro := info.GetDistro(); distro != nil {
		d := L.NewTable()
		L.SetField(d, "id", lua.LString(distro.ID))
		L.SetField(d, "family", lua.LString(distro.Family))
		L.SetField(d, "version", lua.LString(distro.Version))
		L.SetField(tbl, "distro", d)
	}

	// when(cond, value) returns value if cond is true, nil otherwise.
	L.SetField(tbl, "when", L.NewFunction(func(L *lua.LState) int {
		if L.CheckBool(1) {
			L.Push(L.Get(2))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}))

	L.SetGlobal("platform", makeReadOnly(L, tbl))
	return nil
}

// makeReadOnly returns an empty proxy whose metatable forwards reads to
// table and raises on every write.
func makeReadOnly(L *lua.LState, table *lua.LTable) *lua.LTable {
	mt := L.NewTable()
	L.SetField(mt, "__index", table)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("platform table is read-only and cannot be modified")
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LString("protected"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
