package event

import "time"

// Tile lifecycle events emitted by the tile streamer.

type TileLoaded struct {
	MapID uint32
	X, Y  int
	Took  time.Duration
}

type TileUnloaded struct {
	MapID uint32
	X, Y  int
}

type TileLoadFailed struct {
	MapID uint32
	X, Y  int
	Err   error
}
