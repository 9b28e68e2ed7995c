package block

// BlockID представляет числовой идентификатор блока/материала в мире
type BlockID int32

// RenderPass проход рендера, в котором рисуется материал
type RenderPass int16

const (
	RenderPassOpaque RenderPass = iota
	RenderPassOpaqueNoCull
	RenderPassBlendNoCull
	RenderPassTransparent
	RenderPassLiquid
	RenderPassTopSoil
	RenderPassMeta
)

var renderPassNames = map[string]RenderPass{
	"opaque":       RenderPassOpaque,
	"opaquenocull": RenderPassOpaqueNoCull,
	"blendnocull":  RenderPassBlendNoCull,
	"transparent":  RenderPassTransparent,
	"liquid":       RenderPassLiquid,
	"topsoil":      RenderPassTopSoil,
	"meta":         RenderPassMeta,
}

// MaterialKind грубая категория материала (для проверки теплоизоляции)
type MaterialKind uint8

const (
	MaterialOther MaterialKind = iota
	MaterialStone
	MaterialOre
	MaterialSoil
	MaterialCeramic
	MaterialWood
	MaterialGlass
)

var materialKindNames = map[string]MaterialKind{
	"other":   MaterialOther,
	"stone":   MaterialStone,
	"ore":     MaterialOre,
	"soil":    MaterialSoil,
	"ceramic": MaterialCeramic,
	"wood":    MaterialWood,
	"glass":   MaterialGlass,
}

// IsInsulating сообщает, может ли материал давать теплоизолирующую грань
func (k MaterialKind) IsInsulating() bool {
	return k == MaterialStone || k == MaterialOre || k == MaterialSoil || k == MaterialCeramic
}

// RandomizeAxes определяет, какие оси позиции участвуют в выборе альтернативной текстуры
type RandomizeAxes uint8

const (
	RandomizeXYZ RandomizeAxes = iota
	RandomizeXZ
)

// TexturePosition прямоугольник текстуры в атласе (UV в диапазоне 0..1)
type TexturePosition struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

// Texture текстура материала с опциональными альтернативами
type Texture struct {
	Code     string
	Base     TexturePosition
	Variants []TexturePosition
}

// Position возвращает позицию в атласе для альтернативы alt
func (t Texture) Position(alt int) TexturePosition {
	if len(t.Variants) == 0 {
		return t.Base
	}
	return t.Variants[alt%len(t.Variants)]
}

// Box коробка в долях блока (0..1), например коллизия
type Box struct {
	X1, Y1, Z1, X2, Y2, Z2 float32
}

// Properties свойства материала, которые нужны микроблокам
type Properties struct {
	ID              BlockID
	Code            string
	RenderPass      RenderPass
	LightHsv        [3]byte
	LightAbsorption int
	Kind            MaterialKind

	// Textures в порядке объявления; первая служит последним запасным вариантом
	Textures       []Texture
	RandomizeAxes  RandomizeAxes
	RandomizeFaces bool

	VertexFlags     int32
	ClimateColorMap byte
	SeasonColorMap  byte

	// SideSolid по индексам граней N,E,S,W,U,D
	SideSolid [6]bool

	// Снег: уровень снега варианта блока и вариант без снега
	SnowLevel        int
	NotSnowCoveredID BlockID

	ChiselShapeFromCollisionBox bool
	CollisionBoxes              []Box
}

// IsTransparent true для материалов прозрачного прохода; такие соседи не скрывают грани
func (p *Properties) IsTransparent() bool {
	return p.RenderPass == RenderPassTransparent
}

// Texture ищет текстуру по коду
func (p *Properties) Texture(code string) (Texture, bool) {
	for _, t := range p.Textures {
		if t.Code == code {
			return t, true
		}
	}
	return Texture{}, false
}

// AlternateCount максимальное число альтернатив среди текстур материала
func (p *Properties) AlternateCount() int {
	n := 0
	for _, t := range p.Textures {
		if len(t.Variants) > n {
			n = len(t.Variants)
		}
	}
	return n
}

// IsTopSolid верхняя грань блока сплошная
func (p *Properties) IsTopSolid() bool {
	return p.SideSolid[4]
}
