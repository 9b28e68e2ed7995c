package export

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/annel0/microblock/internal/microblock"
	"github.com/annel0/microblock/internal/microblock/mesh"
)

// ErrEmptyMesh нечего экспортировать
var ErrEmptyMesh = errors.New("меш пуст")

// GLB собирает бинарный glTF с основным и снежным мешами.
// Каждый меш становится отдельным примитивом; снег полупрозрачный.
func GLB(meshes mesh.Meshes, name string) ([]byte, error) {
	doc := gltf.NewDocument()
	doc.Asset.Generator = "microblock -> GLB"

	doc.Materials = []*gltf.Material{
		{
			Name: "base",
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorFactor: &[4]float64{1, 1, 1, 1},
				MetallicFactor:  gltf.Float(0),
				RoughnessFactor: gltf.Float(1),
			},
			AlphaMode: gltf.AlphaOpaque,
		},
		{
			Name: "snow",
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorFactor: &[4]float64{1, 1, 1, 0.9},
				MetallicFactor:  gltf.Float(0),
				RoughnessFactor: gltf.Float(1),
			},
			AlphaMode: gltf.AlphaBlend,
		},
	}

	var prims []*gltf.Primitive
	if meshes.Base != nil && !meshes.Base.IsEmpty() {
		prims = append(prims, primitive(doc, meshes.Base, 0))
	}
	if meshes.Snow != nil && !meshes.Snow.IsEmpty() {
		prims = append(prims, primitive(doc, meshes.Snow, 1))
	}
	if len(prims) == 0 {
		return nil, ErrEmptyMesh
	}

	doc.Meshes = []*gltf.Mesh{{Name: name, Primitives: prims}}
	doc.Nodes = []*gltf.Node{{Name: name, Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)

	var out bytes.Buffer
	enc := gltf.NewEncoder(&out)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("кодирование glb: %w", err)
	}
	return out.Bytes(), nil
}

func primitive(doc *gltf.Document, m *mesh.Mesh, material int) *gltf.Primitive {
	n := m.VertexCount()
	positions := make([][3]float32, n)
	normals := make([][3]float32, n)
	uvs := make([][2]float32, n)
	colors := make([][4]uint8, n)

	for i := 0; i < n; i++ {
		positions[i] = [3]float32{m.Positions[i*3], m.Positions[i*3+1], m.Positions[i*3+2]}
		uvs[i] = [2]float32{m.UV[i*2], m.UV[i*2+1]}
		colors[i] = [4]uint8{m.RGBA[i*4], m.RGBA[i*4+1], m.RGBA[i*4+2], m.RGBA[i*4+3]}
	}
	// Четыре вершины на грань, нормаль берётся из индекса грани
	for f, xyz := range m.XyzFaces {
		normal := mesh.FaceNormal(microblock.Facing(xyz - 1))
		for v := 0; v < 4; v++ {
			normals[f*4+v] = normal
		}
	}

	return &gltf.Primitive{
		Attributes: gltf.PrimitiveAttributes{
			gltf.POSITION:   modeler.WritePosition(doc, positions),
			gltf.NORMAL:     modeler.WriteNormal(doc, normals),
			gltf.TEXCOORD_0: modeler.WriteTextureCoord(doc, uvs),
			gltf.COLOR_0:    modeler.WriteColor(doc, colors),
		},
		Indices:  gltf.Index(modeler.WriteIndices(doc, m.Indices)),
		Material: gltf.Index(material),
	}
}
