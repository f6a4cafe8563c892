package binder

import (
	"encoding/json"
	"fmt"
	"sort"
)

// GridName identifies a supported page layout such as "3x3".
type GridName string

const (
	Grid2x2 GridName = "2x2"
	Grid3x3 GridName = "3x3"
	Grid3x4 GridName = "3x4"
	Grid4x3 GridName = "4x3"
	Grid4x4 GridName = "4x4"
	Grid5x4 GridName = "5x4"
)

// DefaultGrid is used for new binders when no grid is configured.
const DefaultGrid = Grid3x3

// GridConfig describes how many slots one physical page holds.
type GridConfig struct {
	Name  GridName `json:"name"`
	Rows  int      `json:"rows"`
	Cols  int      `json:"cols"`
	Total int      `json:"total"`
}

var grids = map[GridName]GridConfig{
	Grid2x2: newGrid(Grid2x2, 2, 2),
	Grid3x3: newGrid(Grid3x3, 3, 3),
	Grid3x4: newGrid(Grid3x4, 3, 4),
	Grid4x3: newGrid(Grid4x3, 4, 3),
	Grid4x4: newGrid(Grid4x4, 4, 4),
	Grid5x4: newGrid(Grid5x4, 5, 4),
}

func newGrid(name GridName, rows, cols int) GridConfig {
	return GridConfig{Name: name, Rows: rows, Cols: cols, Total: rows * cols}
}

// LookupGrid returns the configuration for a grid name.
func LookupGrid(name GridName) (GridConfig, error) {
	g, ok := grids[name]
	if !ok {
		return GridConfig{}, fmt.Errorf("unknown grid size %q", name)
	}
	return g, nil
}

// MustGrid is LookupGrid for names known at compile time.
func MustGrid(name GridName) GridConfig {
	g, err := LookupGrid(name)
	if err != nil {
		panic(err)
	}
	return g
}

// GridNames lists the supported grids, smallest first.
func GridNames() []GridName {
	names := make([]GridName, 0, len(grids))
	for name := range grids {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		gi, gj := grids[names[i]], grids[names[j]]
		if gi.Total != gj.Total {
			return gi.Total < gj.Total
		}
		return gi.Name < gj.Name
	})
	return names
}

// UnmarshalJSON accepts either the full object or a bare grid name.
func (g *GridConfig) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		cfg, err := LookupGrid(GridName(name))
		if err != nil {
			return err
		}
		*g = cfg
		return nil
	}

	type plain GridConfig
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	cfg, err := LookupGrid(p.Name)
	if err != nil {
		return err
	}
	if p.Rows != 0 && (p.Rows != cfg.Rows || p.Cols != cfg.Cols) {
		return fmt.Errorf("grid %q does not match %dx%d", p.Name, p.Rows, p.Cols)
	}
	*g = cfg
	return nil
}
