// Package fleet 定义固定的五艘船编制，以及布阵的合法性校验。
package fleet

import (
	"errors"
	"fmt"
	"sort"

	"naval-battle/internal/domain"
	"naval-battle/internal/grid"
)

// Ship 描述编制中的一艘船。
type Ship struct {
	ID   string
	Name string
	Size int
}

// Roster 是每个座位必须布置的全部船只。
var Roster = []Ship{
	{ID: "carrier", Name: "Carrier", Size: 5},
	{ID: "battleship", Name: "Battleship", Size: 4},
	{ID: "cruiser", Name: "Cruiser", Size: 3},
	{ID: "submarine", Name: "Submarine", Size: 3},
	{ID: "destroyer", Name: "Destroyer", Size: 2},
}

var (
	ErrUnknownShip  = errors.New("fleet: unknown ship")
	ErrOutOfBounds  = errors.New("fleet: ship does not fit on the board")
	ErrOverlap      = errors.New("fleet: ship overlaps another ship")
	ErrIncomplete   = errors.New("fleet: not every ship is placed")
	ErrBadShipShape = errors.New("fleet: ship cells are not a straight contiguous line")
)

// Lookup 按 ID 查找编制中的船。
func Lookup(shipID string) (Ship, bool) {
	for _, s := range Roster {
		if s.ID == shipID {
			return s, true
		}
	}
	return Ship{}, false
}

// TotalCells 返回整支舰队占据的格子数。
func TotalCells() int {
	n := 0
	for _, s := range Roster {
		n += s.Size
	}
	return n
}

// Layout 是布阵阶段的可变状态，确认后通过 Fleet() 导出。
type Layout struct {
	placed map[string][]string
}

// NewLayout 创建空布阵。
func NewLayout() *Layout {
	return &Layout{placed: make(map[string][]string)}
}

// Fits 判断 cells 是否全部在棋盘内，且不与 exclude 以外的已放置船只重叠。
func (l *Layout) Fits(cells []string, exclude string) error {
	if len(cells) == 0 {
		return ErrOutOfBounds
	}
	occupied := l.occupied()
	for _, c := range cells {
		if !grid.Valid(c) {
			return ErrOutOfBounds
		}
		if owner, ok := occupied[c]; ok && owner != exclude {
			return fmt.Errorf("%w: %s at %s", ErrOverlap, owner, c)
		}
	}
	return nil
}

// Place 放置（或重新放置）一艘船。
func (l *Layout) Place(shipID, anchor string, o grid.Orientation) ([]string, error) {
	ship, ok := Lookup(shipID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownShip, shipID)
	}
	cells, ok := grid.ShipCells(anchor, ship.Size, o)
	if !ok {
		return nil, ErrOutOfBounds
	}
	if err := l.Fits(cells, shipID); err != nil {
		return nil, err
	}
	l.placed[shipID] = cells
	return append([]string(nil), cells...), nil
}

// Remove 移除一艘船，用于重新布置。
func (l *Layout) Remove(shipID string) {
	delete(l.placed, shipID)
}

// Clear 清空全部船只。
func (l *Layout) Clear() {
	l.placed = make(map[string][]string)
}

// Complete 判断编制中的船是否都已放置。
func (l *Layout) Complete() bool {
	return len(l.placed) == len(Roster)
}

// Fleet 导出深拷贝。
func (l *Layout) Fleet() domain.Fleet {
	return domain.Fleet(l.placed).Clone()
}

func (l *Layout) occupied() map[string]string {
	out := make(map[string]string)
	for id, cells := range l.placed {
		for _, c := range cells {
			out[c] = id
		}
	}
	return out
}

// Validate 校验一个已完成的舰队：恰好包含编制中的船、尺寸正确、
// 每艘船为直线连续格、在棋盘内且互不重叠。
func Validate(f domain.Fleet) error {
	if len(f) != len(Roster) {
		return fmt.Errorf("%w: have %d of %d ships", ErrIncomplete, len(f), len(Roster))
	}
	l := NewLayout()
	// 按 ID 排序，保证报错信息稳定
	ids := make([]string, 0, len(f))
	for id := range f {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ship, ok := Lookup(id)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownShip, id)
		}
		cells := f[id]
		if len(cells) != ship.Size || !straight(cells) {
			return fmt.Errorf("%w: %s", ErrBadShipShape, id)
		}
		if err := l.Fits(cells, id); err != nil {
			return err
		}
		l.placed[id] = append([]string(nil), cells...)
	}
	return nil
}

// straight 判断格子是否按顺序构成一条水平或垂直的连续线段。
func straight(cells []string) bool {
	r0, c0, ok := grid.CellToCoords(cells[0])
	if !ok {
		return false
	}
	if len(cells) == 1 {
		return true
	}
	r1, c1, ok := grid.CellToCoords(cells[1])
	if !ok {
		return false
	}
	o := grid.Horizontal
	if c1 == c0 && r1 == r0+1 {
		o = grid.Vertical
	}
	want, ok := grid.ShipCells(cells[0], len(cells), o)
	if !ok {
		return false
	}
	for i := range want {
		if want[i] != cells[i] {
			return false
		}
	}
	return true
}
