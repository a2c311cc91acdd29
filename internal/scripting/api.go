package scripting

import (
	"errors"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/l1jgo/vmap/internal/stream"
	"github.com/l1jgo/vmap/internal/vmap"
)

func (e *Engine) vmapFuncs() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"los":        e.luaLOS,
		"hitpos":     e.luaHitPos,
		"height":     e.luaHeight,
		"area":       e.luaArea,
		"liquid":     e.luaLiquid,
		"load":       e.luaLoad,
		"unload":     e.luaUnload,
		"unload_map": e.luaUnloadMap,
		"exists":     e.luaExists,
		"tiles":      e.luaTiles,
		"maps":       e.luaMaps,
		"disable":    e.luaDisable,
		"models":     e.luaModels,
	}
}

// vmap.los(map, x1, y1, z1, x2, y2, z2) -> bool
func (e *Engine) luaLOS(L *lua.LState) int {
	ok := e.mgr.IsInLineOfSight(checkMap(L, 1),
		checkF32(L, 2), checkF32(L, 3), checkF32(L, 4),
		checkF32(L, 5), checkF32(L, 6), checkF32(L, 7))
	L.Push(lua.LBool(ok))
	return 1
}

// vmap.hitpos(map, x1, y1, z1, x2, y2, z2 [, pushback]) -> hit, x, y, z
func (e *Engine) luaHitPos(L *lua.LState) int {
	pos, hit := e.mgr.GetObjectHitPos(checkMap(L, 1),
		checkF32(L, 2), checkF32(L, 3), checkF32(L, 4),
		checkF32(L, 5), checkF32(L, 6), checkF32(L, 7),
		float32(L.OptNumber(8, 0)))
	L.Push(lua.LBool(hit))
	L.Push(lua.LNumber(pos[0]))
	L.Push(lua.LNumber(pos[1]))
	L.Push(lua.LNumber(pos[2]))
	return 4
}

// vmap.height(map, x, y, z [, maxdist]) -> number or nil
func (e *Engine) luaHeight(L *lua.LState) int {
	maxDist := float32(L.OptNumber(5, lua.LNumber(e.maxDist)))
	h := e.mgr.GetHeight(checkMap(L, 1), checkF32(L, 2), checkF32(L, 3), checkF32(L, 4), maxDist)
	if h == vmap.InvalidHeight {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(h))
	return 1
}

// vmap.area(map, x, y, z) -> {flags, adt_id, root_id, group_id, z} or nil
func (e *Engine) luaArea(L *lua.LState) int {
	info, ok := e.mgr.GetAreaInfo(checkMap(L, 1), checkF32(L, 2), checkF32(L, 3), checkF32(L, 4))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	t := L.NewTable()
	t.RawSetString("flags", lua.LNumber(info.Flags))
	t.RawSetString("adt_id", lua.LNumber(info.AdtID))
	t.RawSetString("root_id", lua.LNumber(info.RootID))
	t.RawSetString("group_id", lua.LNumber(info.GroupID))
	t.RawSetString("z", lua.LNumber(info.Z))
	L.Push(t)
	return 1
}

// vmap.liquid(map, x, y, z [, mask]) -> {level, floor, type} or nil
func (e *Engine) luaLiquid(L *lua.LState) int {
	mask := uint32(L.OptInt64(5, 0))
	info, ok := e.mgr.GetLiquidLevel(checkMap(L, 1), checkF32(L, 2), checkF32(L, 3), checkF32(L, 4), mask)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	t := L.NewTable()
	t.RawSetString("level", lua.LNumber(info.Level))
	t.RawSetString("floor", lua.LNumber(info.Floor))
	t.RawSetString("type", lua.LNumber(info.Type))
	L.Push(t)
	return 1
}

// vmap.load(map, x, y) -> "ok" | "error" | "ignored", err
func (e *Engine) luaLoad(L *lua.LState) int {
	err := e.mgr.LoadTile(e.basePath, checkMap(L, 1), L.CheckInt(2), L.CheckInt(3))
	res := vmap.LoadOK
	switch {
	case err == nil:
	case errors.Is(err, vmap.ErrLoadingDisabled):
		res = vmap.LoadIgnored
	default:
		res = vmap.LoadError
	}
	L.Push(lua.LString(res.String()))
	if err != nil {
		L.Push(lua.LString(err.Error()))
		return 2
	}
	return 1
}

// vmap.unload(map, x, y)
func (e *Engine) luaUnload(L *lua.LState) int {
	e.mgr.UnloadMapTile(checkMap(L, 1), L.CheckInt(2), L.CheckInt(3))
	return 0
}

// vmap.unload_map(map)
func (e *Engine) luaUnloadMap(L *lua.LState) int {
	e.mgr.UnloadMap(checkMap(L, 1))
	return 0
}

// vmap.exists(map, x, y) -> bool
func (e *Engine) luaExists(L *lua.LState) int {
	L.Push(lua.LBool(e.mgr.ExistsMap(e.basePath, checkMap(L, 1), L.CheckInt(2), L.CheckInt(3))))
	return 1
}

// vmap.tiles(map) -> {{x=, y=}, ...}
func (e *Engine) luaTiles(L *lua.LState) int {
	t := L.NewTable()
	for _, c := range e.mgr.LoadedTiles(checkMap(L, 1)) {
		ct := L.NewTable()
		ct.RawSetString("x", lua.LNumber(c.X))
		ct.RawSetString("y", lua.LNumber(c.Y))
		t.Append(ct)
	}
	L.Push(t)
	return 1
}

// vmap.maps() -> {id, ...}
func (e *Engine) luaMaps(L *lua.LState) int {
	t := L.NewTable()
	for _, id := range e.mgr.LoadedMaps() {
		t.Append(lua.LNumber(id))
	}
	L.Push(t)
	return 1
}

// vmap.disable(map, flags) replaces the disable flags of one map; 0 clears.
func (e *Engine) luaDisable(L *lua.LState) int {
	mapID, flags := checkMap(L, 1), uint32(L.CheckInt64(2))
	d := e.mgr.Disables()
	if flags == 0 {
		delete(d, mapID)
	} else {
		d[mapID] = flags
	}
	e.mgr.SetDisables(d)
	e.log.Info("map disables changed by script", zap.Uint32("map", mapID), zap.Uint32("flags", flags))
	return 0
}

// vmap.models() -> {loaded, loads, evictions}
func (e *Engine) luaModels(L *lua.LState) int {
	st := e.mgr.Cache().Stats()
	t := L.NewTable()
	t.RawSetString("loaded", lua.LNumber(st.Loaded))
	t.RawSetString("loads", lua.LNumber(st.Loads))
	t.RawSetString("evictions", lua.LNumber(st.Evictions))
	L.Push(t)
	return 1
}

func (e *Engine) streamFuncs() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"add":    e.luaStreamAdd,
		"move":   e.luaStreamMove,
		"remove": e.luaStreamRemove,
		"tick":   e.luaStreamTick,
		"stats":  e.luaStreamStats,
	}
}

// stream.add({map=, x=, y=, radius=}) -> id
func (e *Engine) luaStreamAdd(L *lua.LState) int {
	t := L.CheckTable(1)
	radius := -1
	if v := t.RawGetString("radius"); v != lua.LNil {
		radius = lInt(t, "radius")
	}
	id := e.streamer.AddObserver(stream.Observer{
		MapID:  uint32(lInt(t, "map")),
		X:      lNum(t, "x"),
		Y:      lNum(t, "y"),
		Radius: radius,
	})
	L.Push(lua.LNumber(id))
	return 1
}

// stream.move(id, map, x, y) -> bool
func (e *Engine) luaStreamMove(L *lua.LState) int {
	id := stream.ObserverID(L.CheckInt64(1))
	L.Push(lua.LBool(e.streamer.MoveObserver(id, checkMap(L, 2), checkF32(L, 3), checkF32(L, 4))))
	return 1
}

// stream.remove(id) -> bool
func (e *Engine) luaStreamRemove(L *lua.LState) int {
	L.Push(lua.LBool(e.streamer.RemoveObserver(stream.ObserverID(L.CheckInt64(1)))))
	return 1
}

// stream.tick() plans, waits for the loads and recycles removed observers.
func (e *Engine) luaStreamTick(L *lua.LState) int {
	e.streamer.Plan()
	e.streamer.Settle()
	e.streamer.FlushRemoved()
	return 0
}

// stream.stats() -> {observers, loaded, loading, failed, loads, unloads, failures}
func (e *Engine) luaStreamStats(L *lua.LState) int {
	st := e.streamer.Stats()
	t := L.NewTable()
	t.RawSetString("observers", lua.LNumber(st.Observers))
	t.RawSetString("loaded", lua.LNumber(st.Loaded))
	t.RawSetString("loading", lua.LNumber(st.Loading))
	t.RawSetString("failed", lua.LNumber(st.Failed))
	t.RawSetString("loads", lua.LNumber(st.Loads))
	t.RawSetString("unloads", lua.LNumber(st.Unloads))
	t.RawSetString("failures", lua.LNumber(st.Failures))
	L.Push(t)
	return 1
}
