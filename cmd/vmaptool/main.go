// vmaptool loads vmap collision data and answers queries against it.
//
// Usage:
//
//	go run ./cmd/vmaptool <command> [-config path] [args]
//
// Commands: check, los, hitpos, height, area, liquid, preload, script,
// disable, resolve, serve
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/l1jgo/vmap/internal/config"
)

type command struct {
	usage string
	run   func(a *app, args []string) error
}

var commands = map[string]command{
	"check":   {"<map> <tileX> <tileY>        report whether a tile can be loaded", runCheck},
	"los":     {"<map> <x1 y1 z1> <x2 y2 z2>  line of sight between two points", runLOS},
	"hitpos":  {"<map> <x1 y1 z1> <x2 y2 z2> [pushback]  first hit along a segment", runHitPos},
	"height":  {"<map> <x y z> [maxdist]      ground height under a point", runHeight},
	"area":    {"<map> <x y z>                area info under a point", runArea},
	"liquid":  {"<map> <x y z> [mask]         liquid level over a point", runLiquid},
	"preload": {"                             load every preload tile of the map list", runPreload},
	"script":  {"[file.lua]                   run one script, or the scripting dir", runScript},
	"disable": {"<map> <flags> [note]         store a map's disable mask (0 clears)", runDisable},
	"resolve": {"<map>                        mark a map's logged load failures handled", runResolve},
	"serve":   {"                             stream tiles and answer queries over TCP until stopped", runServe},
}

var commandOrder = []string{"check", "los", "hitpos", "height", "area", "liquid", "preload", "script", "disable", "resolve", "serve"}

func printUsage() {
	fmt.Println("Usage: vmaptool <command> [-config path] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, name := range commandOrder {
		fmt.Printf("  %-8s %s\n", name, commands[name].usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	name := os.Args[1]
	if name == "-h" || name == "--help" || name == "help" {
		printUsage()
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfgPath := fs.String("config", config.Path("config/vmap.toml"), "config file")
	_ = fs.Parse(os.Args[2:])

	if err := run(*cfgPath, cmd, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string, cmd command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()
	return cmd.run(a, args)
}

// ── Display helpers ───────────────────────────────────────────────

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printValue(label, value string) {
	dotsLen := 42 - len(label) - len(value)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m %s\n", label, strings.Repeat("·", dotsLen), value)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printFail(msg string) {
	fmt.Printf("  \033[31m✗\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	log, err := zapCfg.Build()
	if err != nil || cfg.File == "" {
		return log, err
	}

	// The file always gets JSON, whatever the console format.
	sink := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(sink),
		zapCfg.Level,
	)
	return log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})), nil
}
