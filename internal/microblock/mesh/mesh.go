package mesh

import "github.com/annel0/microblock/internal/world/block"

// Mesh геометрия для рендера: четыре вершины и шесть индексов на каждую видимую грань
type Mesh struct {
	Positions []float32 // x,y,z на вершину, в долях блока
	UV        []float32 // u,v на вершину, в координатах атласа
	RGBA      []byte    // 4 байта на вершину
	Flags     []int32   // флаги вершины: флаги материала | упакованная нормаль
	Indices   []uint32

	// Данные на грань
	XyzFaces         []byte // индекс грани + 1
	RenderPasses     []block.RenderPass
	ClimateColorMaps []byte
	SeasonColorMaps  []byte
}

// NewMesh создаёт пустой меш с запасом под n граней
func NewMesh(faces int) *Mesh {
	return &Mesh{
		Positions:        make([]float32, 0, faces*12),
		UV:               make([]float32, 0, faces*8),
		RGBA:             make([]byte, 0, faces*16),
		Flags:            make([]int32, 0, faces*4),
		Indices:          make([]uint32, 0, faces*6),
		XyzFaces:         make([]byte, 0, faces),
		RenderPasses:     make([]block.RenderPass, 0, faces),
		ClimateColorMaps: make([]byte, 0, faces),
		SeasonColorMaps:  make([]byte, 0, faces),
	}
}

// VertexCount число вершин
func (m *Mesh) VertexCount() int {
	return len(m.Positions) / 3
}

// FaceCount число граней (квадов)
func (m *Mesh) FaceCount() int {
	return len(m.XyzFaces)
}

// IsEmpty нет ни одной грани
func (m *Mesh) IsEmpty() bool {
	return m == nil || len(m.Indices) == 0
}

// Translate сдвигает все вершины
func (m *Mesh) Translate(dx, dy, dz float32) {
	for i := 0; i+2 < len(m.Positions); i += 3 {
		m.Positions[i] += dx
		m.Positions[i+1] += dy
		m.Positions[i+2] += dz
	}
}

// Append дописывает другой меш, смещая его индексы
func (m *Mesh) Append(o *Mesh) {
	if o == nil {
		return
	}
	base := uint32(m.VertexCount())
	m.Positions = append(m.Positions, o.Positions...)
	m.UV = append(m.UV, o.UV...)
	m.RGBA = append(m.RGBA, o.RGBA...)
	m.Flags = append(m.Flags, o.Flags...)
	for _, idx := range o.Indices {
		m.Indices = append(m.Indices, base+idx)
	}
	m.XyzFaces = append(m.XyzFaces, o.XyzFaces...)
	m.RenderPasses = append(m.RenderPasses, o.RenderPasses...)
	m.ClimateColorMaps = append(m.ClimateColorMaps, o.ClimateColorMaps...)
	m.SeasonColorMaps = append(m.SeasonColorMaps, o.SeasonColorMaps...)
}

// Clone глубокая копия
func (m *Mesh) Clone() *Mesh {
	if m == nil {
		return nil
	}
	c := NewMesh(0)
	c.Append(m)
	return c
}

// Bounds габариты вершин; для пустого меша нули
func (m *Mesh) Bounds() (min, max [3]float32) {
	for i := 0; i+2 < len(m.Positions); i += 3 {
		for a := 0; a < 3; a++ {
			v := m.Positions[i+a]
			if i == 0 || v < min[a] {
				min[a] = v
			}
			if i == 0 || v > max[a] {
				max[a] = v
			}
		}
	}
	return min, max
}
