package block

// Атлас встроенных материалов: 16x16 тайлов
const atlasTiles = 16

// Tile возвращает позицию тайла n в атласе встроенных материалов
func Tile(n int) TexturePosition {
	size := float32(1) / atlasTiles
	x := float32(n%atlasTiles) * size
	y := float32(n/atlasTiles) * size
	return TexturePosition{X1: x, Y1: y, X2: x + size, Y2: y + size}
}

func solidSides() [6]bool {
	return [6]bool{true, true, true, true, true, true}
}

func faceTextures(outside, inside int) []Texture {
	faces := []string{"north", "east", "south", "west", "up", "down"}
	textures := make([]Texture, 0, 12)
	for _, f := range faces {
		textures = append(textures, Texture{Code: f, Base: Tile(outside)})
	}
	if inside >= 0 {
		for _, f := range faces {
			textures = append(textures, Texture{Code: "inside-" + f, Base: Tile(inside)})
		}
	}
	return textures
}

// RegisterDefaults регистрирует встроенные материалы
func RegisterDefaults(r *Registry) error {
	defaults := []Properties{
		{ID: AirBlockID, Code: "air", RenderPass: RenderPassTransparent},
		{
			ID: GraniteBlockID, Code: DefaultMaterialCode, RenderPass: RenderPassOpaque,
			LightAbsorption: 99, Kind: MaterialStone, SideSolid: solidSides(),
			Textures: faceTextures(1, 2),
		},
		{
			ID: AndesiteBlockID, Code: "rock-andesite", RenderPass: RenderPassOpaque,
			LightAbsorption: 99, Kind: MaterialStone, SideSolid: solidSides(),
			Textures: []Texture{{
				Code: "all",
				Base: Tile(3),
				Variants: []TexturePosition{Tile(3), Tile(4), Tile(5), Tile(6)},
			}},
		},
		{
			ID: ClayBlockID, Code: "claybricks", RenderPass: RenderPassOpaque,
			LightAbsorption: 99, Kind: MaterialCeramic, SideSolid: solidSides(),
			Textures: faceTextures(7, -1),
		},
		{
			ID: GlassBlockID, Code: "glass-plain", RenderPass: RenderPassTransparent,
			LightAbsorption: 1, Kind: MaterialGlass,
			Textures: faceTextures(8, -1),
		},
		{
			ID: LampBlockID, Code: "lamp-copper", RenderPass: RenderPassOpaque,
			LightHsv: [3]byte{7, 3, 18}, LightAbsorption: 0, SideSolid: solidSides(),
			Textures: faceTextures(9, -1),
		},
		{
			ID: SnowLayerID, Code: "snowlayer-1", RenderPass: RenderPassOpaque,
			LightAbsorption: 0, Textures: []Texture{{Code: "all", Base: Tile(10)}},
		},
		{
			ID: PlanksBlockID, Code: "planks-oak", RenderPass: RenderPassOpaque,
			LightAbsorption: 99, Kind: MaterialWood, SideSolid: solidSides(),
			ChiselShapeFromCollisionBox: true,
			CollisionBoxes: []Box{
				{X1: 0, Y1: 0, Z1: 0, X2: 1, Y2: 0.5, Z2: 1},
			},
			Textures:       faceTextures(11, -1),
			RandomizeAxes:  RandomizeXZ,
			RandomizeFaces: true,
		},
		{ID: MicroBlockID, Code: "microblock-free", RenderPass: RenderPassOpaque, NotSnowCoveredID: MicroBlockID},
		{
			ID: MicroBlockSnowID, Code: "microblock-snow", RenderPass: RenderPassOpaque,
			SnowLevel: 1, NotSnowCoveredID: MicroBlockID,
		},
	}

	for _, p := range defaults {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}
