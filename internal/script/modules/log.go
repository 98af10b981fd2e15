package modules

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

// LogModule exposes the daemon's structured logger to Lua scripts. Every
// entry is tagged source=lua; an optional table argument becomes log fields.
//
//	log.info("fan adjusted", {device = fan:id(), percentage = 66})
type LogModule struct{}

// NewLogModule creates a new log module
func NewLogModule() *LogModule {
	return &LogModule{}
}

// Loader is the module loader for Lua
func (m *LogModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "debug", L.NewFunction(emit(zerolog.DebugLevel)))
	L.SetField(mod, "info", L.NewFunction(emit(zerolog.InfoLevel)))
	L.SetField(mod, "warn", L.NewFunction(emit(zerolog.WarnLevel)))
	L.SetField(mod, "error", L.NewFunction(emit(zerolog.ErrorLevel)))

	L.Push(mod)
	return 1
}

// emit builds the Lua function for one log level. The message is required,
// the fields table is not.
func emit(level zerolog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)

		event := log.WithLevel(level).Str("source", "lua")
		if tbl, ok := L.Get(2).(*lua.LTable); ok {
			tbl.ForEach(func(key, value lua.LValue) {
				event = event.Interface(lua.LVAsString(key), LuaToGo(value))
			})
		}
		event.Msg(msg)

		return 0
	}
}
