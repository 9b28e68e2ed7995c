package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/microblock/internal/eventbus"
	"github.com/annel0/microblock/internal/logging"
	"github.com/annel0/microblock/internal/microblock"
	"github.com/annel0/microblock/internal/microblock/mesh"
	"github.com/annel0/microblock/internal/microblock/persist"
	"github.com/annel0/microblock/internal/storage"
	"github.com/annel0/microblock/internal/vec"
	"github.com/annel0/microblock/internal/world/block"
)

var (
	// ErrNoShape в позиции нет микроблока
	ErrNoShape = errors.New("в позиции нет микроблока")
	// ErrUnknownMaterial материала нет в регистре
	ErrUnknownMaterial = errors.New("неизвестный материал")
)

// MergeObserver получает длительность каждого слияния (метрики)
type MergeObserver interface {
	ObserveMerge(duration time.Duration, cuboids int)
	SetShapes(n int)
}

// Options коллабораторы мира. Bus и Metrics могут быть nil.
type Options struct {
	Materials *block.Registry
	Repo      storage.ShapeRepo
	Builder   *mesh.Builder
	Pool      *mesh.Pool
	Bus       eventbus.EventBus
	Metrics   MergeObserver
	SnowLayer block.BlockID
	// DefaultMaterial код материала для невосстановимых данных
	DefaultMaterial string
}

// entry микроблок в позиции. mu сериализует изменения одной позиции.
type entry struct {
	mu     sync.Mutex
	shape  *microblock.Shape
	render mesh.RenderState
	gen    uint64
	dirty  bool
}

// World хозяин микроблоков: разреженный слой блоков, формы по позициям,
// уведомления освещения и сохранение через репозиторий
type World struct {
	materials *block.Registry
	repo      storage.ShapeRepo
	codec     *persist.Codec
	builder   *mesh.Builder
	pool      *mesh.Pool
	bus       eventbus.EventBus
	metrics   MergeObserver
	snowLayer block.BlockID
	tracer    trace.Tracer

	mu     sync.RWMutex
	shapes map[vec.Vec3]*entry

	// слой блоков под своей блокировкой: его читают операции формы под entry.mu
	layerMu sync.RWMutex
	blocks  map[vec.Vec3]block.BlockID
}

var _ microblock.BlockAccessor = (*World)(nil)

// New создаёт мир
func New(opts Options) (*World, error) {
	if opts.Materials == nil || opts.Repo == nil || opts.Builder == nil || opts.Pool == nil {
		return nil, fmt.Errorf("мир: не заданы материалы, хранилище или сборщик мешей")
	}
	return &World{
		materials: opts.Materials,
		repo:      opts.Repo,
		codec:     persist.NewCodec(opts.Materials, opts.DefaultMaterial),
		builder:   opts.Builder,
		pool:      opts.Pool,
		bus:       opts.Bus,
		metrics:   opts.Metrics,
		snowLayer: opts.SnowLayer,
		tracer:    otel.Tracer("github.com/annel0/microblock/internal/world"),
		blocks:    make(map[vec.Vec3]block.BlockID),
		shapes:    make(map[vec.Vec3]*entry),
	}, nil
}

// Materials регистр материалов мира
func (w *World) Materials() *block.Registry {
	return w.materials
}

// Repo хранилище форм
func (w *World) Repo() storage.ShapeRepo {
	return w.repo
}

// Builder сборщик мешей мира
func (w *World) Builder() *mesh.Builder {
	return w.builder
}

func (w *World) env() microblock.Env {
	return microblock.Env{Materials: w.materials, World: w}
}

func (w *World) startSpan(ctx context.Context, name string, pos vec.Vec3) (context.Context, trace.Span) {
	return w.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("microblock.pos", pos.Key())))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (w *World) lookup(pos vec.Vec3) (*entry, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.shapes[pos]
	return e, ok
}

// install ставит форму в позицию, заменяя прежнюю
func (w *World) install(s *microblock.Shape, blockID block.BlockID) *entry {
	e := &entry{shape: s}
	w.mu.Lock()
	w.shapes[s.Pos] = e
	n := len(w.shapes)
	w.mu.Unlock()
	w.SetBlock(s.Pos, blockID)

	if w.metrics != nil {
		w.metrics.SetShapes(n)
	}
	return e
}

// Place превращает блок в позиции в микроблок из материала materialID
func (w *World) Place(ctx context.Context, pos vec.Vec3, materialID block.BlockID, name string) (shape *microblock.Shape, err error) {
	ctx, span := w.startSpan(ctx, "world.Place", pos)
	defer func() { endSpan(span, err) }()

	props, ok := w.materials.Get(materialID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMaterial, materialID)
	}

	start := time.Now()
	s, err := microblock.Place(w.env(), pos, props, name)
	if err != nil {
		return nil, fmt.Errorf("установка микроблока в %s: %w", pos, err)
	}
	w.observeMerge(start, s)

	e := w.install(s, block.MicroBlockID)
	e.mu.Lock()
	e.dirty = true
	snap := s.Clone()
	e.mu.Unlock()

	logging.Debug("🧱 Микроблок %s из %s в %s", name, props.Code, pos)
	w.publishShape(ctx, snap, eventbus.OpPlaced)
	return snap, nil
}

// edit выполняет изменение формы под блокировкой позиции
func (w *World) edit(ctx context.Context, pos vec.Vec3, op eventbus.ShapeOp, fn func(e *entry) (bool, error)) (bool, error) {
	e, ok := w.lookup(pos)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNoShape, pos)
	}

	e.mu.Lock()
	changed, err := fn(e)
	if err != nil || !changed {
		e.mu.Unlock()
		return false, err
	}
	e.gen++
	e.dirty = true
	e.render.Invalidate()
	empty := e.shape.IsEmpty()
	snap := e.shape.Clone()
	e.mu.Unlock()

	if empty {
		// Пустой микроблок превращается в воздух
		if err := w.Remove(ctx, pos); err != nil && !errors.Is(err, ErrNoShape) {
			return true, err
		}
		return true, nil
	}

	w.publishShape(ctx, snap, op)
	return true, nil
}

// SetVoxel ставит или убирает кисть size³ материала materialID с углом в voxel.
// Материал добавляется в таблицу формы только если кисть что-то изменила.
func (w *World) SetVoxel(ctx context.Context, pos vec.Vec3, voxel microblock.Voxel, add bool, materialID block.BlockID, size int) (changed bool, err error) {
	ctx, span := w.startSpan(ctx, "world.SetVoxel", pos)
	defer func() { endSpan(span, err) }()

	if !voxel.InRange() || size < 1 {
		return false, fmt.Errorf("%w: воксель %v кисть %d", microblock.ErrOutOfRange, voxel, size)
	}

	return w.edit(ctx, pos, eventbus.OpChiseled, func(e *entry) (bool, error) {
		var idx byte
		materials := len(e.shape.Materials)
		if add {
			if _, ok := w.materials.Get(materialID); !ok {
				return false, fmt.Errorf("%w: %d", ErrUnknownMaterial, materialID)
			}
			var err error
			if idx, err = e.shape.AddMaterial(materialID); err != nil {
				return false, err
			}
		}

		start := time.Now()
		changed, err := e.shape.SetVoxel(w.env(), voxel, add, idx, size)
		if err != nil || !changed {
			// Материал, не попавший в сетку, не занимает место в таблице
			e.shape.Materials = e.shape.Materials[:materials]
			return false, err
		}
		w.observeMerge(start, e.shape)
		return true, nil
	})
}

// SetData заменяет сетку формы целиком. Пустая сетка убирает микроблок.
func (w *World) SetData(ctx context.Context, pos vec.Vec3, g *microblock.VoxelGrid) (err error) {
	ctx, span := w.startSpan(ctx, "world.SetData", pos)
	defer func() { endSpan(span, err) }()

	_, err = w.edit(ctx, pos, eventbus.OpReplaced, func(e *entry) (bool, error) {
		start := time.Now()
		e.shape.SetData(w.env(), g)
		w.observeMerge(start, e.shape)
		return true, nil
	})
	return err
}

// Transform поворачивает форму на degrees и отражает по оси flip
func (w *World) Transform(ctx context.Context, pos vec.Vec3, degrees int, flip microblock.Axis) (err error) {
	ctx, span := w.startSpan(ctx, "world.Transform", pos)
	span.SetAttributes(attribute.Int("microblock.degrees", degrees), attribute.String("microblock.flip", flip.String()))
	defer func() { endSpan(span, err) }()

	_, err = w.edit(ctx, pos, eventbus.OpTransformed, func(e *entry) (bool, error) {
		if err := e.shape.Transform(w.env(), degrees, flip); err != nil {
			return false, fmt.Errorf("поворот микроблока в %s: %w", pos, err)
		}
		return true, nil
	})
	return err
}

// SetSnowLevel меняет уровень снега и вариант блока (со снегом или без)
func (w *World) SetSnowLevel(ctx context.Context, pos vec.Vec3, level int) error {
	if level < 0 {
		return fmt.Errorf("%w: уровень снега %d", microblock.ErrOutOfRange, level)
	}
	e, ok := w.lookup(pos)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoShape, pos)
	}

	e.mu.Lock()
	e.shape.SnowLevel = level
	e.mu.Unlock()

	if level > 0 {
		w.ExchangeBlock(block.MicroBlockSnowID, pos)
		return nil
	}
	current := w.Block(pos)
	if props, ok := w.materials.Get(current); ok && props.NotSnowCoveredID != 0 {
		w.ExchangeBlock(props.NotSnowCoveredID, pos)
	}
	return nil
}

// Shape снимок формы в позиции
func (w *World) Shape(pos vec.Vec3) (*microblock.Shape, bool) {
	e, ok := w.lookup(pos)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shape.Clone(), true
}

// Positions позиции всех микроблоков в памяти
func (w *World) Positions() []vec.Vec3 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]vec.Vec3, 0, len(w.shapes))
	for pos := range w.shapes {
		out = append(out, pos)
	}
	return out
}

// Count число микроблоков в памяти
func (w *World) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.shapes)
}

// SnowContext внешнее состояние снега для позиции
func (w *World) SnowContext(pos vec.Vec3, level int) mesh.SnowContext {
	below := false
	if props, ok := w.materials.Get(w.Block(pos.Down())); ok {
		below = props.IsTopSolid()
	}
	return mesh.SnowContext{Layer: w.snowLayer, Level: level, BelowTopSolid: below}
}

// Mesh отдаёт меши формы. Последняя сборка кэшируется до изменения формы;
// снежный меш пересобирается при смене уровня снега или блока снизу.
// Новая сборка идёт через пул по снимку формы.
func (w *World) Mesh(ctx context.Context, pos vec.Vec3) (meshes mesh.Meshes, err error) {
	ctx, span := w.startSpan(ctx, "world.Mesh", pos)
	defer func() { endSpan(span, err) }()

	e, ok := w.lookup(pos)
	if !ok {
		return mesh.Meshes{}, fmt.Errorf("%w: %s", ErrNoShape, pos)
	}

	e.mu.Lock()
	snap := e.shape.Clone()
	gen := e.gen
	e.mu.Unlock()
	snow := w.SnowContext(pos, snap.SnowLevel)

	if m, ok, err := e.render.Tesselate(w.builder, snap, snow, nil); ok {
		span.SetAttributes(attribute.Bool("microblock.cached", true))
		return m, err
	}

	m, err := w.pool.Build(ctx, snap, snow)
	if err != nil {
		return m, err
	}

	e.mu.Lock()
	if e.gen == gen {
		e.render.Store(m, snow)
	}
	e.mu.Unlock()
	return m, nil
}

// Remove превращает микроблок в воздух и удаляет его из хранилища
func (w *World) Remove(ctx context.Context, pos vec.Vec3) (err error) {
	ctx, span := w.startSpan(ctx, "world.Remove", pos)
	defer func() { endSpan(span, err) }()

	w.mu.Lock()
	_, ok := w.shapes[pos]
	delete(w.shapes, pos)
	n := len(w.shapes)
	w.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoShape, pos)
	}
	w.SetBlock(pos, block.AirBlockID)
	if w.metrics != nil {
		w.metrics.SetShapes(n)
	}

	if err := w.repo.Delete(ctx, pos); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("удаление микроблока %s из хранилища: %w", pos, err)
	}

	logging.Debug("🗑️ Микроблок %s убран", pos)
	w.publishShape(ctx, microblock.NewShape(pos), eventbus.OpRemoved)
	return nil
}

func (w *World) entries() []*entry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*entry, 0, len(w.shapes))
	for _, e := range w.shapes {
		out = append(out, e)
	}
	return out
}

// Remap переводит материалы всех форм из старой раскладки id мира
func (w *World) Remap(oldMapping map[block.BlockID]string) {
	for _, e := range w.entries() {
		e.mu.Lock()
		e.shape.RemapMaterials(oldMapping, w.materials)
		e.gen++
		e.dirty = true
		e.render.Invalidate()
		e.mu.Unlock()
	}
}

// Mappings коды всех материалов, используемых формами
func (w *World) Mappings() map[block.BlockID]string {
	out := make(map[block.BlockID]string)
	for _, e := range w.entries() {
		e.mu.Lock()
		e.shape.StoreMappings(out, w.materials)
		e.mu.Unlock()
	}
	return out
}

func (w *World) observeMerge(start time.Time, s *microblock.Shape) {
	if w.metrics != nil {
		w.metrics.ObserveMerge(time.Since(start), len(s.Cuboids))
	}
}

// Digest короткий отпечаток кубоидов и материалов (ETag)
func Digest(s *microblock.Shape) string {
	d := xxhash.New()
	var buf [4]byte
	for _, v := range s.Cuboids {
		buf[0], buf[1], buf[2], buf[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
		d.Write(buf[:])
	}
	for _, id := range s.Materials {
		buf[0], buf[1], buf[2], buf[3] = byte(id), byte(id>>8), byte(id>>16), byte(id>>24)
		d.Write(buf[:])
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

func (w *World) publishShape(ctx context.Context, s *microblock.Shape, op eventbus.ShapeOp) {
	if w.bus == nil {
		return
	}
	payload := eventbus.ShapeChanged{Pos: s.Pos, Op: op, Cuboids: len(s.Cuboids)}
	if op != eventbus.OpRemoved {
		payload.Digest = Digest(s)
	}
	w.publish(ctx, eventbus.TypeShapeChanged, 3, payload)
}

func (w *World) publish(ctx context.Context, eventType string, priority int, payload interface{}) {
	ev, err := eventbus.NewEnvelope(eventType, priority, payload)
	if err != nil {
		logging.Warn("Событие %s не создано: %v", eventType, err)
		return
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		ev.CorrelationID = sc.TraceID().String()
	}
	if err := w.bus.Publish(ctx, ev); err != nil {
		logging.Warn("Событие %s не опубликовано: %v", eventType, err)
	}
}
