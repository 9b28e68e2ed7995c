package mesh

import (
	"encoding/binary"

	"github.com/annel0/microblock/internal/microblock"
	"github.com/annel0/microblock/internal/vec"
	"github.com/annel0/microblock/internal/world/block"
	"github.com/cespare/xxhash/v2"
)

// AlternateIndex детерминированно выбирает альтернативу текстуры для позиции.
// Y учитывается только при RandomizeXYZ, индекс грани только при randomizeFaces.
func AlternateIndex(pos vec.Vec3, face microblock.Facing, axes block.RandomizeAxes, randomizeFaces bool, count int) int {
	if count <= 1 {
		return 0
	}
	var buf [16]byte
	y := pos.Y
	if axes == block.RandomizeXZ {
		y = 0
	}
	f := 0
	if randomizeFaces {
		f = int(face) + 1
	}
	binary.LittleEndian.PutUint32(buf[0:], uint32(pos.X))
	binary.LittleEndian.PutUint32(buf[4:], uint32(y))
	binary.LittleEndian.PutUint32(buf[8:], uint32(pos.Z))
	binary.LittleEndian.PutUint32(buf[12:], uint32(f))
	return int(xxhash.Sum64(buf[:]) % uint64(count))
}

// materialTextures возвращает выбор текстуры грани для материала:
// inside-<грань> для внутренних граней, затем <грань>, затем первая объявленная текстура,
// затем заглушка атласа
func (b *Builder) materialTextures(p *block.Properties, pos *vec.Vec3) faceTexture {
	altCount := 0
	if pos != nil {
		altCount = p.AlternateCount()
	}

	return func(face microblock.Facing, outside bool) block.TexturePosition {
		alt := 0
		if altCount > 0 {
			alt = AlternateIndex(*pos, face, p.RandomizeAxes, p.RandomizeFaces, altCount)
		}

		code := face.String()
		if !outside {
			if t, ok := p.Texture("inside-" + code); ok {
				return t.Position(alt)
			}
		}
		if t, ok := p.Texture(code); ok {
			return t.Position(alt)
		}
		if len(p.Textures) > 0 {
			return p.Textures[0].Position(alt)
		}
		return b.cfg.Unknown
	}
}
