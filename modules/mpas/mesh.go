package mpas

import (
	"fmt"

	"github.com/vk/cmipconv/internal/rawdata"
)

// Mesh is the part of an MPAS restart file the transforms need.
type Mesh struct {
	// Ocean marks cells with at least one active level.
	Ocean []bool
	Area  []float64
	// MaxLevel is the number of active levels per cell. Nil when the mesh
	// does not say, in which case every level is active.
	MaxLevel []int
}

// ReadMesh reads the cell mask and cell areas from an MPAS mesh file. A
// mesh without maxLevelCell treats every cell as active.
func ReadMesh(path string) (*Mesh, error) {
	f, err := rawdata.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	area, err := f.ReadFloats("areaCell")
	if err != nil {
		return nil, err
	}
	m := &Mesh{Area: area, Ocean: make([]bool, len(area))}
	if !f.HasVariable("maxLevelCell") {
		for i := range m.Ocean {
			m.Ocean[i] = true
		}
		return m, nil
	}
	levels, err := f.ReadFloats("maxLevelCell")
	if err != nil {
		return nil, err
	}
	if len(levels) != len(area) {
		return nil, fmt.Errorf("mesh %s: maxLevelCell has %d cells, areaCell has %d", path, len(levels), len(area))
	}
	m.MaxLevel = make([]int, len(levels))
	for i, l := range levels {
		m.MaxLevel[i] = int(l)
		m.Ocean[i] = l > 0
	}
	return m, nil
}

// Active reports whether level l of cell c is below the sea floor.
func (m *Mesh) Active(c, l int) bool {
	if m.MaxLevel == nil {
		return true
	}
	return l < m.MaxLevel[c]
}

// Cells returns the number of mesh cells.
func (m *Mesh) Cells() int { return len(m.Area) }
