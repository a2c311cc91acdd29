package main

import (
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/l1jgo/vmap/internal/data"
	"github.com/l1jgo/vmap/internal/vmap/vmaptest"
)

func TestScanBuildsLoadableList(t *testing.T) {
	w := vmaptest.NewWorld(t)
	w.Model("floor", vmaptest.TileFloor())
	w.Tile(1, 30, 31, vmaptest.TileSpawn(1, "floor", 30, 31, 0))
	w.Tile(1, 33, 29, vmaptest.TileSpawn(2, "floor", 33, 29, 0))
	w.Map(1)
	w.GlobalMap(0, vmaptest.TileSpawn(1, "floor", 32, 32, 0))
	w.Raw("notes"+".vmtree", []byte("x"))

	list, st, err := scan(filepath.Clean(w.Dir), true)
	if err != nil {
		t.Fatal(err)
	}
	if st.maps != 2 || st.tiled != 1 || st.tiles != 2 || len(st.skipped) != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if list.Maps[0].MapID != 0 || list.Maps[0].Range != nil {
		t.Fatalf("untiled map = %+v", list.Maps[0])
	}
	want := data.TileRange{MinX: 30, MinY: 29, MaxX: 33, MaxY: 31}
	if r := list.Maps[1].Range; r == nil || *r != want {
		t.Fatalf("range = %+v, want %+v", r, want)
	}

	raw, err := yaml.Marshal(&list)
	if err != nil {
		t.Fatal(err)
	}
	table, err := data.ParseMapList(raw)
	if err != nil {
		t.Fatalf("generated list does not parse: %v\n%s", err, raw)
	}
	if n := len(table.PreloadTiles()); n != 12 {
		t.Fatalf("preload tiles = %d, want 12", n)
	}
}

func TestScanWithoutPreload(t *testing.T) {
	w := vmaptest.NewWorld(t)
	w.Model("floor", vmaptest.TileFloor())
	w.Tile(3, 1, 1, vmaptest.TileSpawn(1, "floor", 1, 1, 0))
	w.Map(3)

	list, _, err := scan(w.Dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Maps) != 1 || list.Maps[0].Range != nil {
		t.Fatalf("maps = %+v", list.Maps)
	}
}
