package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/annel0/microblock/internal/config"
	"github.com/annel0/microblock/internal/export"
	"github.com/annel0/microblock/internal/gen"
	"github.com/annel0/microblock/internal/microblock"
	"github.com/annel0/microblock/internal/microblock/mesh"
	"github.com/annel0/microblock/internal/microblock/persist"
	"github.com/annel0/microblock/internal/storage"
	"github.com/annel0/microblock/internal/vec"
	"github.com/annel0/microblock/internal/world/block"
)

type options struct {
	pos       vec.Vec3
	file      string
	out       string
	seed      int64
	layers    int
	materials []string
	snow      int
	name      string
}

func main() {
	var (
		command    = flag.String("cmd", "inspect", "Команда: sculpt, inspect, export")
		configPath = flag.String("config", "", "YAML конфигурация хранилища (если не задан -file)")
		posFlag    = flag.String("pos", "0,0,0", "Позиция блока x,y,z")
		file       = flag.String("file", "", "Файл с BSON формы вместо хранилища")
		out        = flag.String("out", "", "Выходной файл (export: .glb)")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "Seed шума для sculpt")
		layers     = flag.Int("layers", 2, "Число слоёв материала для sculpt")
		mats       = flag.String("materials", "rock-granite,rock-andesite", "Коды материалов слоёв (через запятую)")
		snow       = flag.Int("snow", 0, "Уровень снега для export")
		name       = flag.String("name", "sculpted", "Имя формы для sculpt")
	)
	flag.Parse()

	pos, err := parsePos(*posFlag)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	opts := options{
		pos:       pos,
		file:      *file,
		out:       *out,
		seed:      *seed,
		layers:    *layers,
		materials: parseStringList(*mats),
		snow:      *snow,
		name:      *name,
	}

	materials := block.NewRegistry()
	if err := block.RegisterDefaults(materials); err != nil {
		log.Fatalf("❌ Материалы: %v", err)
	}

	var repo storage.ShapeRepo
	if opts.file == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("❌ Конфигурация: %v", err)
		}
		cfg = config.OrDefault(cfg)
		if cfg.Materials.CatalogDir != "" {
			if err := block.LoadJSONBlocks(cfg.Materials.CatalogDir, materials); err != nil && !os.IsNotExist(err) {
				log.Fatalf("❌ Каталог материалов: %v", err)
			}
		}
		if repo, err = storage.Open(cfg.Storage); err != nil {
			log.Fatalf("❌ Хранилище: %v", err)
		}
		defer repo.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch *command {
	case "sculpt":
		err = sculpt(ctx, repo, materials, opts)
	case "inspect":
		err = inspect(ctx, repo, materials, opts)
	case "export":
		err = exportGLB(ctx, repo, materials, opts)
	default:
		err = fmt.Errorf("неизвестная команда: %s", *command)
	}
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
}

// sculpt генерирует форму шумом Перлина и сохраняет её
func sculpt(ctx context.Context, repo storage.ShapeRepo, materials *block.Registry, opts options) error {
	if opts.layers < 1 || opts.layers > microblock.MaxMaterials {
		return fmt.Errorf("число слоёв %d вне [1,%d]", opts.layers, microblock.MaxMaterials)
	}
	if len(opts.materials) == 0 {
		return fmt.Errorf("не заданы материалы слоёв")
	}

	table := make([]block.BlockID, 0, opts.layers)
	for i := 0; i < opts.layers; i++ {
		code := opts.materials[len(opts.materials)-1]
		if i < len(opts.materials) {
			code = opts.materials[i]
		}
		id, ok := materials.ResolveCode(code)
		if !ok {
			return fmt.Errorf("неизвестный материал %q", code)
		}
		table = append(table, id)
	}

	sculptor := gen.NewSculptor(opts.seed)
	sculptor.Layers = opts.layers
	grid := microblock.NewVoxelGrid()
	sculptor.Sculpt(opts.pos, grid)

	s := microblock.NewShape(opts.pos)
	s.Name = opts.name
	s.Materials = table
	s.SetData(microblock.Env{Materials: materials}, grid)
	if s.IsEmpty() {
		return microblock.ErrEmptyShape
	}

	data, err := persist.Marshal(s)
	if err != nil {
		return fmt.Errorf("сериализация: %w", err)
	}
	if err := store(ctx, repo, opts, data); err != nil {
		return err
	}

	fmt.Printf("✅ Форма %s: %d вокселей → %d кубоидов, seed %d\n", opts.pos, grid.Count(), len(s.Cuboids), opts.seed)
	return nil
}

// inspect печатает кубоиды и производные признаки сохранённой формы
func inspect(ctx context.Context, repo storage.ShapeRepo, materials *block.Registry, opts options) error {
	s, err := load(ctx, repo, materials, opts)
	if err != nil {
		return err
	}

	fmt.Printf("📦 Микроблок %s %q\n", s.Pos, s.Name)
	fmt.Printf("   Материалы (%d):\n", len(s.Materials))
	for i, id := range s.Materials {
		code := "?"
		if p, ok := materials.Get(id); ok {
			code = p.Code
		}
		fmt.Printf("     [%d] %d %s\n", i, id, code)
	}

	fmt.Printf("   Кубоиды (%d):\n", len(s.Cuboids))
	for _, v := range s.Cuboids {
		fmt.Printf("     %08x %s\n", v, microblock.Decode(v))
	}
	fmt.Printf("   Снег: %d на поверхности, %d на земле\n", len(s.SnowCuboids), len(s.GroundSnowCuboids))

	solid := make([]string, 0, 6)
	almost := make([]string, 0, 6)
	for _, f := range microblock.AllFaces {
		if s.SideSolid[f] {
			solid = append(solid, f.String())
		}
		if s.SideAlmostSolid[f] {
			almost = append(almost, f.String())
		}
	}
	fmt.Printf("   Сплошные грани: %s\n", strings.Join(solid, ","))
	fmt.Printf("   Почти сплошные: %s\n", strings.Join(almost, ","))
	fmt.Printf("   Объём: %.3f, AO: %#02x, поглощает свет: %v (%d)\n",
		s.VolumeRel, s.EmitSideAo, s.AbsorbAnyLight, s.LightAbsorption(materials))
	hsv := s.LightHsv(materials)
	fmt.Printf("   Свет HSV: %d,%d,%d\n", hsv[0], hsv[1], hsv[2])
	return nil
}

// exportGLB собирает меши формы и пишет их в glTF binary
func exportGLB(ctx context.Context, repo storage.ShapeRepo, materials *block.Registry, opts options) error {
	s, err := load(ctx, repo, materials, opts)
	if err != nil {
		return err
	}
	s.SnowLevel = opts.snow

	var layer block.BlockID
	if id, ok := materials.ResolveCode("snowlayer-1"); ok {
		layer = id
	}

	builder := mesh.NewBuilder(materials, mesh.Config{}, nil)
	var render mesh.RenderState
	// Внизу считаем сплошной блок: офлайн соседей нет
	if err := render.Regen(builder, s, mesh.SnowContext{Layer: layer, Level: opts.snow, BelowTopSolid: true}, nil); err != nil {
		return fmt.Errorf("сборка меша: %w", err)
	}

	name := fmt.Sprintf("microblock_%d_%d_%d", s.Pos.X, s.Pos.Y, s.Pos.Z)
	data, err := export.GLB(render.Current(), name)
	if err != nil {
		return err
	}

	out := opts.out
	if out == "" {
		out = name + ".glb"
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("запись %s: %w", out, err)
	}
	fmt.Printf("✅ %s: %d байт\n", out, len(data))
	return nil
}

func store(ctx context.Context, repo storage.ShapeRepo, opts options, data []byte) error {
	if repo == nil {
		if err := os.WriteFile(opts.file, data, 0o644); err != nil {
			return fmt.Errorf("запись %s: %w", opts.file, err)
		}
		return nil
	}
	if err := repo.Save(ctx, opts.pos, data); err != nil {
		return fmt.Errorf("сохранение %s: %w", opts.pos, err)
	}
	return nil
}

func load(ctx context.Context, repo storage.ShapeRepo, materials *block.Registry, opts options) (*microblock.Shape, error) {
	var (
		data []byte
		err  error
	)
	if repo == nil {
		if data, err = os.ReadFile(opts.file); err != nil {
			return nil, fmt.Errorf("чтение %s: %w", opts.file, err)
		}
	} else {
		var found bool
		if data, found, err = repo.Load(ctx, opts.pos); err != nil {
			return nil, fmt.Errorf("загрузка %s: %w", opts.pos, err)
		}
		if !found {
			return nil, fmt.Errorf("микроблок %s не найден", opts.pos)
		}
	}

	codec := persist.NewCodec(materials, block.DefaultMaterialCode)
	s, err := codec.Unmarshal(data, opts.pos, nil)
	if err != nil {
		return nil, fmt.Errorf("разбор %s: %w", opts.pos, err)
	}
	return s, nil
}

func parsePos(s string) (vec.Vec3, error) {
	parts := parseStringList(s)
	if len(parts) != 3 {
		return vec.Vec3{}, fmt.Errorf("позиция %q: ожидается x,y,z", s)
	}
	var coords [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return vec.Vec3{}, fmt.Errorf("позиция %q: %w", s, err)
		}
		coords[i] = v
	}
	return vec.Vec3{X: coords[0], Y: coords[1], Z: coords[2]}, nil
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
