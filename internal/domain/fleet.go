package domain

// Fleet 是一个座位最终确定的布阵：shipId -> 占据的格子（有序）。
type Fleet map[string][]string

// Clone 深拷贝。
func (f Fleet) Clone() Fleet {
	if f == nil {
		return nil
	}
	out := make(Fleet, len(f))
	for id, cells := range f {
		out[id] = append([]string(nil), cells...)
	}
	return out
}

// ShipAt 返回占据该格子的船，没有则返回空串。
func (f Fleet) ShipAt(cell string) string {
	for id, cells := range f {
		for _, c := range cells {
			if c == cell {
				return id
			}
		}
	}
	return ""
}

// CellCount 返回舰队占据的格子总数。
func (f Fleet) CellCount() int {
	n := 0
	for _, cells := range f {
		n += len(cells)
	}
	return n
}
