package persist

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/annel0/microblock/internal/logging"
	"github.com/annel0/microblock/internal/microblock"
	"github.com/annel0/microblock/internal/vec"
	"github.com/annel0/microblock/internal/world/block"
)

// Ключи сохранённого дерева
const (
	KeyMaterials         = "materials"
	KeyCuboids           = "cuboids"
	KeySnowCuboids       = "snowcuboids"
	KeyGroundSnowCuboids = "groundSnowCuboids"
	KeyEmitSideAo        = "emitSideAo"
	KeySideSolid         = "sideSolid"
	KeySideAlmostSolid   = "sideAlmostSolid"
	KeyBlockName         = "blockName"
)

// legacyFreeSuffix суффикс старых кодов материалов
const legacyFreeSuffix = "-free"

var (
	// ErrMalformed документ не разбирается как дерево формы
	ErrMalformed = errors.New("повреждённые данные микроблока")
	// ErrNoDefaultMaterial материал по умолчанию не зарегистрирован
	ErrNoDefaultMaterial = errors.New("материал по умолчанию не найден")
)

// Codec переводит форму в BSON-дерево и обратно
type Codec struct {
	resolver    microblock.CodeResolver
	defaultCode string
}

// NewCodec создаёт кодек. defaultCode используется, когда таблицу материалов
// восстановить нельзя; пустая строка означает rock-granite.
func NewCodec(resolver microblock.CodeResolver, defaultCode string) *Codec {
	if defaultCode == "" {
		defaultCode = block.DefaultMaterialCode
	}
	return &Codec{resolver: resolver, defaultCode: defaultCode}
}

// ToDocument строит дерево формы. Пустые списки снега не сохраняются.
func ToDocument(s *microblock.Shape) bson.D {
	doc := bson.D{}
	if s.Materials != nil {
		ids := make([]int32, len(s.Materials))
		for i, id := range s.Materials {
			ids[i] = int32(id)
		}
		doc = append(doc, bson.E{Key: KeyMaterials, Value: ids})
	}

	doc = append(doc, bson.E{Key: KeyCuboids, Value: packed(s.Cuboids)})
	if len(s.SnowCuboids) > 0 {
		doc = append(doc, bson.E{Key: KeySnowCuboids, Value: packed(s.SnowCuboids)})
	}
	if len(s.GroundSnowCuboids) > 0 {
		doc = append(doc, bson.E{Key: KeyGroundSnowCuboids, Value: packed(s.GroundSnowCuboids)})
	}

	doc = append(doc,
		bson.E{Key: KeyEmitSideAo, Value: []byte{s.EmitSideAo}},
		bson.E{Key: KeySideSolid, Value: []byte{boolsToByte(s.SideSolid)}},
		bson.E{Key: KeySideAlmostSolid, Value: []byte{boolsToByte(s.SideAlmostSolid)}},
		bson.E{Key: KeyBlockName, Value: s.Name},
	)
	return doc
}

// Marshal сериализует форму в байты BSON
func Marshal(s *microblock.Shape) ([]byte, error) {
	data, err := bson.Marshal(ToDocument(s))
	if err != nil {
		return nil, fmt.Errorf("сериализация микроблока %s: %w", s.Pos, err)
	}
	return data, nil
}

// Unmarshal восстанавливает форму из байтов BSON
func (c *Codec) Unmarshal(data []byte, pos vec.Vec3, sc *microblock.Scratch) (*microblock.Shape, error) {
	raw := bson.Raw(data)
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return c.FromRaw(raw, pos, sc)
}

// FromRaw восстанавливает форму из дерева. Отсутствующие поля старых версий
// пересчитываются по сетке: кубоиды (один полный), снег, маски граней.
func (c *Codec) FromRaw(raw bson.Raw, pos vec.Vec3, sc *microblock.Scratch) (*microblock.Shape, error) {
	if sc == nil {
		sc = microblock.AcquireScratch()
		defer microblock.ReleaseScratch(sc)
	}

	s := microblock.NewShape(pos)

	materials, err := c.materials(raw)
	if err != nil {
		return nil, err
	}
	s.Materials = materials

	if v, err := raw.LookupErr(KeyBlockName); err == nil {
		if name, ok := v.StringValueOK(); ok {
			s.Name = name
		}
	}

	cuboids, found, err := packedList(raw, KeyCuboids, true)
	if err != nil {
		return nil, err
	}
	if !found {
		logging.Debug("микроблок %s: нет кубоидов, ставлю полный блок", pos)
		cuboids = []uint32{microblock.FullCuboid(0).Encode()}
	}
	s.Cuboids = cuboids

	snow, snowFound, err := packedList(raw, KeySnowCuboids, false)
	if err != nil {
		return nil, err
	}
	ground, groundFound, err := packedList(raw, KeyGroundSnowCuboids, false)
	if err != nil {
		return nil, err
	}
	if snowFound && groundFound {
		s.SnowCuboids, s.GroundSnowCuboids = snow, ground
	} else {
		s.RefreshSnow(sc)
	}

	s.EmitSideAo = singleByte(raw, KeyEmitSideAo)
	s.AbsorbAnyLight = s.EmitSideAo != 0
	s.SideSolid = byteToBools(singleByte(raw, KeySideSolid))
	s.SideAlmostSolid = byteToBools(singleByte(raw, KeySideAlmostSolid))

	if _, err := raw.LookupErr(KeySideAlmostSolid); err != nil {
		logging.Debug("микроблок %s: нет sideAlmostSolid, пересчитываю маски граней", pos)
		s.RefreshSideFlags(sc)
	}
	s.RefreshVolume(sc)
	return s, nil
}

// materials читает таблицу материалов: числовые id, либо старые строковые коды
func (c *Codec) materials(raw bson.Raw) ([]block.BlockID, error) {
	v, err := raw.LookupErr(KeyMaterials)
	if err != nil {
		return c.defaultTable()
	}
	arr, ok := v.ArrayOK()
	if !ok {
		return c.defaultTable()
	}
	values, err := arr.Values()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, KeyMaterials, err)
	}

	if len(values) == 0 || isIntArray(values) {
		ids := make([]block.BlockID, len(values))
		for i, v := range values {
			n, _ := intValue(v)
			ids[i] = block.BlockID(n)
		}
		return ids, nil
	}

	codes := make([]string, len(values))
	for i, v := range values {
		code, ok := v.StringValueOK()
		if !ok {
			return c.defaultTable()
		}
		codes[i] = code
	}

	ids := make([]block.BlockID, len(codes))
	for i, code := range codes {
		id, err := c.resolve(code)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// resolve ищет код, затем код с суффиксом -free, затем материал по умолчанию
func (c *Codec) resolve(code string) (block.BlockID, error) {
	if c.resolver != nil {
		if id, ok := c.resolver.ResolveCode(code); ok {
			return id, nil
		}
		if id, ok := c.resolver.ResolveCode(code + legacyFreeSuffix); ok {
			return id, nil
		}
	}
	logging.Debug("материал %q не найден, заменяю на %s", code, c.defaultCode)
	return c.defaultID()
}

func (c *Codec) defaultID() (block.BlockID, error) {
	if c.resolver != nil {
		if id, ok := c.resolver.ResolveCode(c.defaultCode); ok {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNoDefaultMaterial, c.defaultCode)
}

func (c *Codec) defaultTable() ([]block.BlockID, error) {
	id, err := c.defaultID()
	if err != nil {
		return nil, err
	}
	return []block.BlockID{id}, nil
}

// packedList читает список упакованных кубоидов: int32 или старый int64.
// found=false, если ключа нет или он другого типа.
func packedList(raw bson.Raw, key string, allowLong bool) ([]uint32, bool, error) {
	v, err := raw.LookupErr(key)
	if err != nil {
		return nil, false, nil
	}
	arr, ok := v.ArrayOK()
	if !ok {
		return nil, false, nil
	}
	values, err := arr.Values()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}

	out := make([]uint32, len(values))
	for i, v := range values {
		if n, ok := v.Int32OK(); ok {
			out[i] = uint32(n)
			continue
		}
		if n, ok := v.Int64OK(); ok && allowLong {
			out[i] = uint32(n)
			continue
		}
		return nil, false, fmt.Errorf("%w: %s[%d] имеет тип %s", ErrMalformed, key, i, v.Type)
	}
	return out, true, nil
}

// singleByte первый байт двоичного поля; 255 (все грани), если поля нет
func singleByte(raw bson.Raw, key string) byte {
	v, err := raw.LookupErr(key)
	if err != nil {
		return 0xFF
	}
	_, data, ok := v.BinaryOK()
	if !ok || len(data) == 0 {
		return 0xFF
	}
	return data[0]
}

func isIntArray(values []bson.RawValue) bool {
	for _, v := range values {
		if _, ok := intValue(v); !ok {
			return false
		}
	}
	return true
}

func intValue(v bson.RawValue) (int64, bool) {
	if n, ok := v.Int32OK(); ok {
		return int64(n), true
	}
	return v.Int64OK()
}

func packed(list []uint32) []int32 {
	out := make([]int32, len(list))
	for i, v := range list {
		out[i] = int32(v)
	}
	return out
}

func boolsToByte(flags [6]bool) byte {
	var b byte
	for i, f := range flags {
		if f {
			b |= 1 << i
		}
	}
	return b
}

func byteToBools(b byte) [6]bool {
	var flags [6]bool
	for i := range flags {
		flags[i] = b&(1<<i) != 0
	}
	return flags
}
