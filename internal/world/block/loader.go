package block

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/annel0/microblock/internal/logging"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// catalogSchema JSON Schema каталога материалов
const catalogSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["blocks"],
  "properties": {
    "blocks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "code"],
        "properties": {
          "id": {"type": "integer", "minimum": 0},
          "code": {"type": "string", "minLength": 1},
          "renderPass": {"enum": ["opaque", "opaquenocull", "blendnocull", "transparent", "liquid", "topsoil", "meta"]},
          "kind": {"enum": ["other", "stone", "ore", "soil", "ceramic", "wood", "glass"]},
          "lightHsv": {"type": "array", "items": {"type": "integer", "minimum": 0, "maximum": 255}, "minItems": 3, "maxItems": 3},
          "lightAbsorption": {"type": "integer", "minimum": 0, "maximum": 99},
          "randomizeAxes": {"enum": ["xyz", "xz"]},
          "randomizeFaces": {"type": "boolean"},
          "vertexFlags": {"type": "integer"},
          "sideSolid": {"type": "array", "items": {"type": "boolean"}, "minItems": 6, "maxItems": 6},
          "snowLevel": {"type": "integer", "minimum": 0},
          "notSnowCovered": {"type": "integer", "minimum": 0},
          "chiselShapeFromCollisionBox": {"type": "boolean"},
          "collisionBoxes": {"type": "array", "items": {"$ref": "#/definitions/box"}},
          "textures": {"type": "array", "items": {"$ref": "#/definitions/texture"}}
        }
      }
    }
  },
  "definitions": {
    "rect": {"type": "array", "items": {"type": "number", "minimum": 0, "maximum": 1}, "minItems": 4, "maxItems": 4},
    "box": {"type": "array", "items": {"type": "number", "minimum": 0, "maximum": 1}, "minItems": 6, "maxItems": 6},
    "texture": {
      "type": "object",
      "required": ["code", "base"],
      "properties": {
        "code": {"type": "string", "minLength": 1},
        "base": {"$ref": "#/definitions/rect"},
        "variants": {"type": "array", "items": {"$ref": "#/definitions/rect"}}
      }
    }
  }
}`

var (
	compiledSchema     *jsonschema.Schema
	compiledSchemaErr  error
	compiledSchemaOnce sync.Once
)

func catalogValidator() (*jsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("catalog.schema.json", strings.NewReader(catalogSchema)); err != nil {
			compiledSchemaErr = err
			return
		}
		compiledSchema, compiledSchemaErr = c.Compile("catalog.schema.json")
	})
	return compiledSchema, compiledSchemaErr
}

type jsonTexture struct {
	Code     string       `json:"code"`
	Base     [4]float32   `json:"base"`
	Variants [][4]float32 `json:"variants"`
}

type jsonBlock struct {
	ID                          int32         `json:"id"`
	Code                        string        `json:"code"`
	RenderPass                  string        `json:"renderPass"`
	Kind                        string        `json:"kind"`
	LightHsvRaw                 []int         `json:"lightHsv"`
	LightAbsorption             int           `json:"lightAbsorption"`
	RandomizeAxes               string        `json:"randomizeAxes"`
	RandomizeFaces              bool          `json:"randomizeFaces"`
	VertexFlags                 int32         `json:"vertexFlags"`
	SideSolid                   []bool        `json:"sideSolid"`
	SnowLevel                   int           `json:"snowLevel"`
	NotSnowCovered              int32         `json:"notSnowCovered"`
	ChiselShapeFromCollisionBox bool          `json:"chiselShapeFromCollisionBox"`
	CollisionBoxes              [][6]float32  `json:"collisionBoxes"`
	Textures                    []jsonTexture `json:"textures"`
}

type jsonCatalog struct {
	Blocks []jsonBlock `json:"blocks"`
}

func rect(v [4]float32) TexturePosition {
	return TexturePosition{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
}

func (jb jsonBlock) toProperties() Properties {
	p := Properties{
		ID:                          BlockID(jb.ID),
		Code:                        jb.Code,
		RenderPass:                  renderPassNames[jb.RenderPass],
		Kind:                        materialKindNames[jb.Kind],
		LightAbsorption:             jb.LightAbsorption,
		RandomizeFaces:              jb.RandomizeFaces,
		VertexFlags:                 jb.VertexFlags,
		SnowLevel:                   jb.SnowLevel,
		NotSnowCoveredID:            BlockID(jb.NotSnowCovered),
		ChiselShapeFromCollisionBox: jb.ChiselShapeFromCollisionBox,
	}
	if jb.RandomizeAxes == "xz" {
		p.RandomizeAxes = RandomizeXZ
	}
	for i := 0; i < len(jb.LightHsvRaw) && i < 3; i++ {
		p.LightHsv[i] = byte(jb.LightHsvRaw[i])
	}
	for i := 0; i < len(jb.SideSolid) && i < 6; i++ {
		p.SideSolid[i] = jb.SideSolid[i]
	}
	for _, b := range jb.CollisionBoxes {
		p.CollisionBoxes = append(p.CollisionBoxes, Box{X1: b[0], Y1: b[1], Z1: b[2], X2: b[3], Y2: b[4], Z2: b[5]})
	}
	for _, t := range jb.Textures {
		tex := Texture{Code: t.Code, Base: rect(t.Base)}
		for _, v := range t.Variants {
			tex.Variants = append(tex.Variants, rect(v))
		}
		p.Textures = append(p.Textures, tex)
	}
	return p
}

// LoadCatalog читает JSON-каталог материалов, проверяет его схемой и регистрирует материалы
func LoadCatalog(r io.Reader, reg *Registry) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения каталога: %w", err)
	}

	schema, err := catalogValidator()
	if err != nil {
		return 0, fmt.Errorf("ошибка компиляции схемы каталога: %w", err)
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return 0, fmt.Errorf("некорректный JSON каталога: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return 0, fmt.Errorf("каталог не соответствует схеме: %w", err)
	}

	var catalog jsonCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return 0, fmt.Errorf("ошибка разбора каталога: %w", err)
	}

	for _, jb := range catalog.Blocks {
		if err := reg.Register(jb.toProperties()); err != nil {
			return 0, err
		}
	}
	return len(catalog.Blocks), nil
}

// LoadJSONBlocks загружает все *.json каталоги из каталога dir в регистр
func LoadJSONBlocks(dir string, reg *Registry) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		n, err := LoadCatalog(f, reg)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		logging.Debug("Загружено %d материалов из %s", n, name)
	}
	return nil
}
