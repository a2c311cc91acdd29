// maplistgen scans a vmap directory and writes a map_list.yaml skeleton with
// one entry per map file.
//
// Usage:
//
//	go run ./cmd/maplistgen [-vmaps path] [-out path] [-preload]
//
// With -preload every tiled map gets a preload_range covering its tiles.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l1jgo/vmap/internal/data"
	"github.com/l1jgo/vmap/internal/vmap/format"
)

type mapListFile struct {
	Maps []data.MapInfo `yaml:"maps"`
}

type scanStats struct {
	maps, tiled, tiles int
	skipped            []string
}

// scan decodes every map file under dir, ordered by map id.
func scan(dir string, preload bool) (mapListFile, scanStats, error) {
	var out mapListFile
	var st scanStats

	paths, err := filepath.Glob(filepath.Join(dir, "*"+format.MapExt))
	if err != nil {
		return out, st, err
	}
	for _, path := range paths {
		base := strings.TrimSuffix(filepath.Base(path), format.MapExt)
		mapID, err := strconv.ParseUint(base, 10, 32)
		if err != nil {
			st.skipped = append(st.skipped, filepath.Base(path))
			continue
		}
		m, err := format.ReadMapFile(path)
		if err != nil {
			return out, st, fmt.Errorf("map %d: %w", mapID, err)
		}

		info := data.MapInfo{MapID: uint32(mapID)}
		if m.Tiled() && len(m.Tiles) > 0 {
			st.tiled++
			st.tiles += len(m.Tiles)
			if preload {
				info.Range = tileRange(m.Tiles)
			}
		}
		out.Maps = append(out.Maps, info)
		st.maps++
	}
	sort.Slice(out.Maps, func(i, j int) bool { return out.Maps[i].MapID < out.Maps[j].MapID })
	return out, st, nil
}

func tileRange(tiles []format.TileEntry) *data.TileRange {
	r := &data.TileRange{MinX: tiles[0].X, MinY: tiles[0].Y, MaxX: tiles[0].X, MaxY: tiles[0].Y}
	for _, t := range tiles[1:] {
		r.MinX, r.MaxX = min(r.MinX, t.X), max(r.MaxX, t.X)
		r.MinY, r.MaxY = min(r.MinY, t.Y), max(r.MaxY, t.Y)
	}
	return r
}

func main() {
	vmapDir := flag.String("vmaps", filepath.Join("data", "vmaps"), "vmap directory")
	outputPath := flag.String("out", filepath.Join("data", "yaml", "map_list.yaml"), "output file")
	withPreload := flag.Bool("preload", false, "add a preload range per tiled map")
	flag.Parse()

	list, st, err := scan(*vmapDir, *withPreload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error scanning %s: %v\n", *vmapDir, err)
		os.Exit(1)
	}
	for _, name := range st.skipped {
		fmt.Fprintf(os.Stderr, "warning: %s is not named after a map id, skipping\n", name)
	}

	yamlData, err := yaml.Marshal(&list)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshalling YAML: %v\n", err)
		os.Exit(1)
	}
	// Reject anything the server would not load.
	if _, err := data.ParseMapList(yamlData); err != nil {
		fmt.Fprintf(os.Stderr, "generated list is invalid: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(*outputPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output directory: %v\n", err)
		os.Exit(1)
	}
	header := fmt.Sprintf("# Map list - generated from %s\n\n", *vmapDir)
	if err := os.WriteFile(*outputPath, append([]byte(header), yamlData...), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing %s: %v\n", *outputPath, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d maps (%d tiled, %d tiles) to %s\n", st.maps, st.tiled, st.tiles, *outputPath)
}
