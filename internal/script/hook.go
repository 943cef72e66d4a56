// Package script provides an optional Lua tag-transform hook applied to
// each OSM object's tags before style classification. It is disabled
// unless config.ScriptFile is set; the core pipeline works without it.
package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Hook wraps a Lua state loaded with a user-supplied script exposing a
// global process_tags(id, type, tags) -> table|nil function. Returning
// nil drops the object from the import; returning a table replaces the
// tag set passed on to the style engine.
type Hook struct {
	L  *lua.LState
	fn lua.LValue
}

// Load reads and executes the Lua file at path, after registering a
// global osm2pgsql table that holds only a version string, and extracts
// the process_tags callback.
func Load(path string) (*Hook, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})

	osm2pgsql := L.NewTable()
	osm2pgsql.RawSetString("version", lua.LString("1.0.0"))
	L.SetGlobal("osm2pgsql", osm2pgsql)

	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("load script file: %w", err)
	}

	fn := L.GetGlobal("process_tags")
	if fn.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("script file must define a process_tags(id, type, tags) function")
	}

	return &Hook{L: L, fn: fn}, nil
}

// Close releases the Lua interpreter.
func (h *Hook) Close() {
	h.L.Close()
}

// Apply calls process_tags for one OSM object. A nil return means the
// object should be dropped entirely; a non-nil map replaces tags.
func (h *Hook) Apply(id int64, objType string, tags map[string]string) (map[string]string, error) {
	L := h.L

	tagsTbl := L.NewTable()
	for k, v := range tags {
		tagsTbl.RawSetString(k, lua.LString(v))
	}

	if err := L.CallByParam(lua.P{
		Fn:      h.fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(id), lua.LString(objType), tagsTbl); err != nil {
		return nil, fmt.Errorf("process_tags callback: %w", err)
	}

	ret := L.Get(-1)
	L.Pop(1)

	if ret.Type() == lua.LTNil || ret.Type() == lua.LTBool && !bool(ret.(lua.LBool)) {
		return nil, nil
	}

	result, ok := ret.(*lua.LTable)
	if !ok {
		return tags, nil
	}

	out := make(map[string]string)
	result.ForEach(func(key, value lua.LValue) {
		if key.Type() == lua.LTString && value.Type() == lua.LTString {
			out[key.String()] = value.String()
		}
	})
	return out, nil
}
