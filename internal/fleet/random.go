package fleet

import (
	"errors"
	"math/rand"
	"sort"

	"naval-battle/internal/domain"
	"naval-battle/internal/grid"
)

const (
	maxFleetAttempts = 5
	maxShipAttempts  = 200
)

// ErrRandomPlacement 表示随机布阵在重试上限内没有找到可行解。
var ErrRandomPlacement = errors.New("fleet: random placement failed")

// Random 随机生成一个完整舰队：从大到小放置，每艘船最多尝试 200 次，
// 整体最多重来 5 次。
func Random(rng *rand.Rand) (domain.Fleet, error) {
	ships := append([]Ship(nil), Roster...)
	sort.SliceStable(ships, func(i, j int) bool { return ships[i].Size > ships[j].Size })

	for attempt := 0; attempt < maxFleetAttempts; attempt++ {
		l := NewLayout()
		if placeAll(l, ships, rng) {
			return l.Fleet(), nil
		}
	}
	return nil, ErrRandomPlacement
}

func placeAll(l *Layout, ships []Ship, rng *rand.Rand) bool {
	for _, ship := range ships {
		placed := false
		for t := 0; t < maxShipAttempts; t++ {
			o := grid.Horizontal
			if rng.Intn(2) == 1 {
				o = grid.Vertical
			}
			anchor, _ := grid.CoordsToCell(rng.Intn(grid.Size), rng.Intn(grid.Size))
			if _, err := l.Place(ship.ID, anchor, o); err == nil {
				placed = true
				break
			}
		}
		if !placed {
			return false
		}
	}
	return true
}
