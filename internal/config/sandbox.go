package config

import (
	lua "github.com/yuin/gopher-lua"
)

// blockedGlobals are removed from every settings VM:
//   - os, io: command execution and filesystem access
//   - require, dofile, loadfile, load, loadstring: loading external code
//   - debug: could be used to bypass the sandbox
//   - collectgarbage: GC control
//
// string, table, math and the basic functions (type, tostring, pairs, ...)
// are kept; settings files only need declarative helpers.
var blockedGlobals = []string{
	"os",
	"io",
	"require",
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"debug",
	"collectgarbage",
}

// sandboxLuaVM restricts a Lua VM to side-effect-free operations.
func sandboxLuaVM(L *lua.LState) {
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
}

// newSandboxedVM creates a new Lua VM with sandboxing applied.
func newSandboxedVM() *lua.LState {
	L := lua.NewState()
	sandboxLuaVM(L)
	return L
}
