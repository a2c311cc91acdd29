package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/vmap/internal/core/event"
	coresys "github.com/l1jgo/vmap/internal/core/system"
	"github.com/l1jgo/vmap/internal/handler"
	gonet "github.com/l1jgo/vmap/internal/net"
	"github.com/l1jgo/vmap/internal/net/packet"
	"github.com/l1jgo/vmap/internal/persist"
	"github.com/l1jgo/vmap/internal/scripting"
	"github.com/l1jgo/vmap/internal/stream"
	"github.com/l1jgo/vmap/internal/system"
	"github.com/l1jgo/vmap/internal/vmap"
	"github.com/l1jgo/vmap/internal/vmap/maptree"
)

// parseArgs reads a map id followed by numbers. want is the count of
// required numbers; up to extra optional ones may follow.
func parseArgs(args []string, want, extra int) (uint32, []float32, error) {
	if len(args) < 1+want || len(args) > 1+want+extra {
		return 0, nil, fmt.Errorf("expected a map id and %d numbers, got %d arguments", want, len(args))
	}
	mapID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, nil, fmt.Errorf("map id %q: %w", args[0], err)
	}
	nums := make([]float32, len(args)-1)
	for i, s := range args[1:] {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, nil, fmt.Errorf("argument %d %q: %w", i+2, s, err)
		}
		nums[i] = float32(v)
	}
	return uint32(mapID), nums, nil
}

func formatVec(x, y, z float32) string {
	return fmt.Sprintf("%.3f %.3f %.3f", x, y, z)
}

func runCheck(a *app, args []string) error {
	mapID, n, err := parseArgs(args, 2, 0)
	if err != nil {
		return err
	}
	x, y := int(n[0]), int(n[1])
	printSection(fmt.Sprintf("%s tile %d,%d", a.maps.Name(mapID), x, y))
	if err := maptree.CanLoadMap(a.cfg.VMap.BasePath, mapID, x, y); err != nil {
		printFail(err.Error())
		return nil
	}
	printOK("files present")
	if err := a.mgr.LoadTile(a.cfg.VMap.BasePath, mapID, x, y); err != nil {
		printFail(err.Error())
		return nil
	}
	printOK("tile loads")
	printStat("models", a.mgr.Cache().Len())
	return nil
}

func runLOS(a *app, args []string) error {
	mapID, n, err := parseArgs(args, 6, 0)
	if err != nil {
		return err
	}
	a.loadAround(mapID, n[0], n[1])
	a.loadAround(mapID, n[3], n[4])
	visible := a.mgr.IsInLineOfSight(mapID, n[0], n[1], n[2], n[3], n[4], n[5])
	printValue("line of sight", strconv.FormatBool(visible))
	return nil
}

func runHitPos(a *app, args []string) error {
	mapID, n, err := parseArgs(args, 6, 1)
	if err != nil {
		return err
	}
	var pushback float32
	if len(n) == 7 {
		pushback = n[6]
	}
	a.loadAround(mapID, n[0], n[1])
	a.loadAround(mapID, n[3], n[4])
	pos, hit := a.mgr.GetObjectHitPos(mapID, n[0], n[1], n[2], n[3], n[4], n[5], pushback)
	printValue("hit", strconv.FormatBool(hit))
	printValue("position", formatVec(pos[0], pos[1], pos[2]))
	return nil
}

func runHeight(a *app, args []string) error {
	mapID, n, err := parseArgs(args, 3, 1)
	if err != nil {
		return err
	}
	maxDist := a.cfg.VMap.MaxSearchDist
	if len(n) == 4 {
		maxDist = n[3]
	}
	a.loadAround(mapID, n[0], n[1])
	h := a.mgr.GetHeight(mapID, n[0], n[1], n[2], maxDist)
	if h == vmap.InvalidHeight {
		printFail("no surface below")
		return nil
	}
	printValue("height", fmt.Sprintf("%.3f", h))
	return nil
}

func runArea(a *app, args []string) error {
	mapID, n, err := parseArgs(args, 3, 0)
	if err != nil {
		return err
	}
	a.loadAround(mapID, n[0], n[1])
	info, ok := a.mgr.GetAreaInfo(mapID, n[0], n[1], n[2])
	if !ok {
		printFail("no area")
		return nil
	}
	printValue("flags", fmt.Sprintf("%#x", info.Flags))
	printStat("adt id", int(info.AdtID))
	printStat("root id", int(info.RootID))
	printStat("group id", int(info.GroupID))
	printValue("ground z", fmt.Sprintf("%.3f", info.Z))
	return nil
}

func runLiquid(a *app, args []string) error {
	mapID, n, err := parseArgs(args, 3, 1)
	if err != nil {
		return err
	}
	var mask uint32
	if len(n) == 4 {
		mask = uint32(n[3])
	}
	a.loadAround(mapID, n[0], n[1])
	info, ok := a.mgr.GetLiquidLevel(mapID, n[0], n[1], n[2], mask)
	if !ok {
		printFail("no liquid")
		return nil
	}
	printValue("level", fmt.Sprintf("%.3f", info.Level))
	printValue("floor", fmt.Sprintf("%.3f", info.Floor))
	printStat("type", int(info.Type))
	return nil
}

func runPreload(a *app, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tiles := a.maps.PreloadTiles()
	printSection("preload")
	printStat("maps listed", a.maps.Count())
	printStat("tiles", len(tiles))

	start := time.Now()
	res, err := preload(ctx, a.mgr, a.cfg.VMap.BasePath, tiles, a.cfg.VMap.PreloadWorkers)
	printStat("loaded", res.loaded)
	printStat("failed", res.failed)
	printStat("models", a.mgr.Cache().Len())
	printOK(fmt.Sprintf("done in %s", time.Since(start).Round(time.Millisecond)))
	return err
}

func (a *app) newEngine(s *stream.Streamer) *scripting.Engine {
	e := scripting.NewEngine(a.mgr, a.cfg.VMap.BasePath, a.cfg.VMap.MaxSearchDist, a.log)
	if s != nil {
		e.BindStreamer(s)
	}
	return e
}

func runScript(a *app, args []string) error {
	bus := event.NewBus()
	s := stream.New(a.mgr, bus, a.cfg.VMap.BasePath, a.cfg.Stream, a.log)
	defer s.Close()
	e := a.newEngine(s)
	defer e.Close()

	if len(args) > 0 {
		for _, path := range args {
			if err := e.DoFile(path); err != nil {
				return err
			}
		}
		return nil
	}
	return e.LoadDir(a.cfg.Scripting.Dir)
}

func runDisable(a *app, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("expected a map id and flags")
	}
	if err := a.requireDB(); err != nil {
		return err
	}
	mapID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("map id %q: %w", args[0], err)
	}
	flags, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("flags %q: %w", args[1], err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo := persist.NewDisableRepo(a.db)
	if flags == 0 {
		if err := repo.Delete(ctx, uint32(mapID)); err != nil {
			return err
		}
		printOK(fmt.Sprintf("%s: disables cleared", a.maps.Name(uint32(mapID))))
		return nil
	}
	row := persist.DisableRow{MapID: uint32(mapID), Flags: uint32(flags), Note: strings.Join(args[2:], " ")}
	if err := repo.Set(ctx, row); err != nil {
		return err
	}
	printOK(fmt.Sprintf("%s: disables set to %#x", a.maps.Name(uint32(mapID)), flags))
	return nil
}

func runResolve(a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected a map id")
	}
	if err := a.requireDB(); err != nil {
		return err
	}
	mapID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("map id %q: %w", args[0], err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := persist.NewFailureRepo(a.db).Resolve(ctx, uint32(mapID))
	if err != nil {
		return err
	}
	printStat("failures resolved", int(n))
	return nil
}

// statsIntervalTicks and failureFlushTicks are counted in stream ticks.
const (
	statsIntervalTicks = 150
	failureFlushTicks  = 25
)

func runServe(a *app, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := event.NewBus()
	s := stream.New(a.mgr, bus, a.cfg.VMap.BasePath, a.cfg.Stream, a.log)
	defer s.Close()

	runner := coresys.NewRunner()
	runner.Register(system.NewEventDispatchSystem(bus))
	stream.Register(runner, s)
	runner.Register(system.NewStatsSystem(a.mgr, s, a.log, statsIntervalTicks))

	var failureLog *system.FailureLogSystem
	if a.db != nil {
		failureLog = system.NewFailureLogSystem(bus, persist.NewFailureRepo(a.db), a.log, failureFlushTicks)
		runner.Register(failureLog)
	}
	var listenAddr string
	if a.cfg.Network.BindAddress != "" {
		store, srv, err := a.startQueryServer(runner, s)
		if err != nil {
			return err
		}
		defer store.CloseAll()
		defer srv.Shutdown()
		listenAddr = srv.Addr().String()
	}
	event.Subscribe(bus, func(e event.TileLoaded) {
		a.log.Debug("tile loaded", zap.Uint32("map", e.MapID), zap.Int("x", e.X), zap.Int("y", e.Y), zap.Duration("took", e.Took))
	})

	for _, t := range a.maps.PreloadTiles() {
		s.Pin(t.MapID, t.X, t.Y)
	}

	e := a.newEngine(s)
	defer e.Close()
	if err := e.LoadDir(a.cfg.Scripting.Dir); err != nil {
		return err
	}

	printSection("serving")
	printStat("pinned tiles", len(a.maps.PreloadTiles()))
	printStat("observers", s.Stats().Observers)
	if listenAddr != "" {
		printReady(fmt.Sprintf("listening on %s", listenAddr))
	}
	printReady(fmt.Sprintf("stream loop started (tick: %s)", a.cfg.Stream.TickRate))

	err := runner.Run(ctx, a.cfg.Stream.TickRate)
	a.log.Info("shutting down", zap.Uint64("ticks", runner.Ticks()))
	s.Settle()
	if failureLog != nil {
		// Failures collected during Settle are only on the bus.
		bus.SwapBuffers()
		bus.DispatchAll()
		failureLog.Flush()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// startQueryServer opens the query listener and registers the systems that
// serve it.
func (a *app) startQueryServer(runner *coresys.Runner, s *stream.Streamer) (*gonet.SessionStore, *gonet.Server, error) {
	ncfg := a.cfg.Network
	srv, err := gonet.NewServer(ncfg.BindAddress, ncfg.InQueueSize, ncfg.OutQueueSize, ncfg.MaxPacketsPerSec, a.log)
	if err != nil {
		return nil, nil, fmt.Errorf("net server: %w", err)
	}
	go srv.AcceptLoop()

	reg := packet.NewRegistry(a.log)
	deps := handler.NewDeps(a.mgr, s, a.cfg, a.log)
	handler.RegisterAll(reg, deps)

	store := gonet.NewSessionStore()
	runner.Register(system.NewInputSystem(srv, reg, store, ncfg.MaxPacketsPerTick, func(id uint64) {
		handler.HandleDisconnect(id, deps)
	}, a.log))
	runner.Register(system.NewOutputSystem(store))
	return store, srv, nil
}
