package gridworld

import "factoryverse.ai/internal/sim/nav"

type tile struct{ x, y int }

// Fixed neighbor order keeps the search deterministic across runs.
var tileDirs = [4]tile{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// findPath runs a bounded breadth-first search over the tile grid and returns
// the path as tile-center waypoints with collinear runs collapsed. A start
// and goal on the same tile yields an empty path with ok=true.
func (w *World) findPath(from, to nav.Pos) ([]nav.Pos, bool) {
	sx, sy := tileOf(from)
	gx, gy := tileOf(to)
	if !w.inBounds(sx, sy) || !w.inBounds(gx, gy) || w.solidAt(gx, gy) {
		return nil, false
	}
	start := tile{sx, sy}
	goal := tile{gx, gy}
	if start == goal {
		return nil, true
	}

	parent := map[tile]tile{start: start}
	queue := make([]tile, 0, 256)
	queue = append(queue, start)
	found := false
	for head := 0; head < len(queue) && len(parent) < w.cfg.MaxPathNodes; head++ {
		cur := queue[head]
		if cur == goal {
			found = true
			break
		}
		for _, d := range tileDirs {
			nx, ny := cur.x+d.x, cur.y+d.y
			np := tile{nx, ny}
			if _, seen := parent[np]; seen {
				continue
			}
			if !w.inBounds(nx, ny) || w.solidAt(nx, ny) {
				continue
			}
			parent[np] = cur
			queue = append(queue, np)
		}
	}
	if !found {
		if _, ok := parent[goal]; !ok {
			return nil, false
		}
	}

	var tiles []tile
	for cur := goal; cur != start; cur = parent[cur] {
		tiles = append(tiles, cur)
	}
	// Reverse into walk order.
	for i, j := 0, len(tiles)-1; i < j; i, j = i+1, j-1 {
		tiles[i], tiles[j] = tiles[j], tiles[i]
	}

	waypoints := make([]nav.Pos, 0, len(tiles))
	for i, t := range tiles {
		if i > 0 && i < len(tiles)-1 {
			prev, next := tiles[i-1], tiles[i+1]
			if (prev.x == t.x && next.x == t.x) || (prev.y == t.y && next.y == t.y) {
				continue
			}
		}
		waypoints = append(waypoints, tileCenter(t.x, t.y))
	}
	return waypoints, true
}
