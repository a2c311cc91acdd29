package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/l1jgo/vmap/internal/stream"
	"github.com/l1jgo/vmap/internal/vmap"
)

// APIVersion is exposed to scripts as API_VERSION.
const APIVersion = 1

// Engine wraps a single gopher-lua VM with the collision queries bound as
// the vmap table. Single-goroutine access only.
type Engine struct {
	vm       *lua.LState
	log      *zap.Logger
	mgr      *vmap.Manager
	basePath string
	maxDist  float32
	streamer *stream.Streamer
}

// NewEngine creates a Lua engine bound to mgr. Tile loads go to basePath
// and height queries default to maxSearchDist.
func NewEngine(mgr *vmap.Manager, basePath string, maxSearchDist float32, log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(APIVersion))

	e := &Engine{vm: vm, log: log, mgr: mgr, basePath: basePath, maxDist: maxSearchDist}
	vm.SetGlobal("vmap", vm.SetFuncs(vm.NewTable(), e.vmapFuncs()))

	flags := vm.NewTable()
	flags.RawSetString("area", lua.LNumber(vmap.DisableAreaFlag))
	flags.RawSetString("height", lua.LNumber(vmap.DisableHeight))
	flags.RawSetString("los", lua.LNumber(vmap.DisableLOS))
	flags.RawSetString("liquid", lua.LNumber(vmap.DisableLiquidStatus))
	vm.GetGlobal("vmap").(*lua.LTable).RawSetString("disable_flags", flags)
	return e
}

// BindStreamer exposes s to scripts as the stream table.
func (e *Engine) BindStreamer(s *stream.Streamer) {
	e.streamer = s
	e.vm.SetGlobal("stream", e.vm.SetFuncs(e.vm.NewTable(), e.streamFuncs()))
}

// LoadDir loads all .lua files in a directory in name order. A missing
// directory is not an error.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.DoFile(path); err != nil {
			return err
		}
	}
	return nil
}

// DoFile runs one script.
func (e *Engine) DoFile(path string) error {
	if err := e.vm.DoFile(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	e.log.Debug("loaded lua script", zap.String("file", path))
	return nil
}

// DoString runs a chunk of Lua source.
func (e *Engine) DoString(src string) error {
	return e.vm.DoString(src)
}

// Call invokes a global Lua function and returns its first result.
func (e *Engine) Call(name string, args ...lua.LValue) (lua.LValue, error) {
	fn := e.vm.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return lua.LNil, fmt.Errorf("lua function %s not found", name)
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		return lua.LNil, fmt.Errorf("lua %s: %w", name, err)
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return result, nil
}

// Global returns a global value, for callers that read script results.
func (e *Engine) Global(name string) lua.LValue {
	return e.vm.GetGlobal(name)
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// --- Lua helpers ---

func checkMap(L *lua.LState, n int) uint32 {
	return uint32(L.CheckInt64(n))
}

func checkF32(L *lua.LState, n int) float32 {
	return float32(L.CheckNumber(n))
}

// lInt reads an integer field from a Lua table.
func lInt(t *lua.LTable, key string) int {
	return int(lua.LVAsNumber(t.RawGetString(key)))
}

// lNum reads a number field from a Lua table.
func lNum(t *lua.LTable, key string) float32 {
	return float32(lua.LVAsNumber(t.RawGetString(key)))
}
