// Package grid 负责 10x10 棋盘上格子标识与坐标之间的换算。
//
// 规范格式为 "<ROW><COL>"，如 "A1"、"J10"。页面元素使用的 "cell-A1" 形式
// 只在边界处通过 Normalize / DOMID 转换。
package grid

import (
	"strconv"
	"strings"
)

const (
	Rows = "ABCDEFGHIJ"
	Size = 10

	domPrefix = "cell-"
)

// Orientation 船只朝向。
type Orientation string

const (
	Horizontal Orientation = "H"
	Vertical   Orientation = "V"
)

// Valid 判断朝向是否为 H 或 V。
func (o Orientation) Valid() bool { return o == Horizontal || o == Vertical }

// CellToCoords 将 "A1" 转为 (0, 0)。格式错误或越界时 ok 为 false。
func CellToCoords(cell string) (row, col int, ok bool) {
	if len(cell) < 2 || len(cell) > 3 {
		return 0, 0, false
	}
	row = strings.IndexByte(Rows, cell[0])
	if row < 0 {
		return 0, 0, false
	}
	digits := cell[1:]
	if digits[0] == '0' {
		return 0, 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || n > Size {
		return 0, 0, false
	}
	return row, n - 1, true
}

// CoordsToCell 将 (row, col) 转为 "A1" 形式，越界时 ok 为 false。
func CoordsToCell(row, col int) (string, bool) {
	if row < 0 || row >= Size || col < 0 || col >= Size {
		return "", false
	}
	return string(Rows[row]) + strconv.Itoa(col+1), true
}

// Valid 判断是否为规范格式的合法格子。
func Valid(cell string) bool {
	_, _, ok := CellToCoords(cell)
	return ok
}

// Normalize 接受 "A1"、"a1" 或 "cell-A1"，返回规范形式。
func Normalize(id string) (string, bool) {
	id = strings.TrimPrefix(strings.TrimSpace(id), domPrefix)
	id = strings.ToUpper(id)
	if !Valid(id) {
		return "", false
	}
	return id, true
}

// DOMID 返回页面元素使用的 "cell-A1" 形式。
func DOMID(cell string) string { return domPrefix + cell }

// ShipCells 计算从 anchor 起、长度为 size 的船占据的格子。
// 水平方向列递增，垂直方向行递增；任一格越界时返回 false。
func ShipCells(anchor string, size int, o Orientation) ([]string, bool) {
	row, col, ok := CellToCoords(anchor)
	if !ok || size <= 0 || !o.Valid() {
		return nil, false
	}
	cells := make([]string, 0, size)
	for i := 0; i < size; i++ {
		r, c := row, col
		if o == Vertical {
			r += i
		} else {
			c += i
		}
		id, ok := CoordsToCell(r, c)
		if !ok {
			return nil, false
		}
		cells = append(cells, id)
	}
	return cells, true
}

// AllCells 按行优先顺序返回全部 100 个格子。
func AllCells() []string {
	out := make([]string, 0, Size*Size)
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			id, _ := CoordsToCell(r, c)
			out = append(out, id)
		}
	}
	return out
}
