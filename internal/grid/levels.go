package grid

import "github.com/gridforge/hedgeengine/internal/models"

// CurrentGridLevel implements spec §4.3 current_grid_level: walk levels
// accumulating max_orders, return the first index whose cumulative bound
// strictly exceeds the position count on that side, clamped to the last
// level.
func CurrentGridLevel(levels [4]models.GridLevelConfig, positionCount int) int {
	cumulative := 0
	for i, lvl := range levels {
		cumulative += lvl.MaxOrders
		if positionCount < cumulative {
			return i
		}
	}
	return len(levels) - 1
}

// levelForInsertion returns the level a position at 1-based insertion
// index n (I1: "cumulative order count first exceeds its 1-based
// insertion position") belongs to.
func levelForInsertion(levels [4]models.GridLevelConfig, n int) int {
	cumulative := 0
	for i, lvl := range levels {
		cumulative += lvl.MaxOrders
		if n <= cumulative {
			return i
		}
	}
	return len(levels) - 1
}
