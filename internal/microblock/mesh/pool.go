package mesh

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/microblock/internal/microblock"
)

// ErrPoolClosed пул остановлен
var ErrPoolClosed = errors.New("пул сборки мешей остановлен")

// Observer получает статистику каждой сборки (метрики)
type Observer interface {
	ObserveMesh(duration time.Duration, faces int, err error)
}

// Result результат фоновой сборки
type Result struct {
	Meshes Meshes
	Err    error
}

type job struct {
	shape  *microblock.Shape
	snow   SnowContext
	result chan Result
}

// PoolStats счётчики пула
type PoolStats struct {
	Built     atomic.Int64
	Corrupted atomic.Int64
	Busy      atomic.Int32
}

// Pool собирает меши в фоне. Каждый воркер держит свой Scratch;
// задачи получают только снимки формы, исходная форма не читается.
type Pool struct {
	builder      *Builder
	observer     Observer
	workerCount  int
	jobs         chan job
	shutdownChan chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup
	stats        PoolStats
}

// NewPool запускает workerCount воркеров (по умолчанию по числу CPU)
func NewPool(builder *Builder, workerCount int, observer Observer) *Pool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		builder:      builder,
		observer:     observer,
		workerCount:  workerCount,
		jobs:         make(chan job, workerCount*2),
		shutdownChan: make(chan struct{}),
	}

	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	sc := microblock.NewScratch()

	for {
		select {
		case <-p.shutdownChan:
			return
		case j := <-p.jobs:
			p.stats.Busy.Add(1)
			j.result <- p.run(j, sc)
			p.stats.Busy.Add(-1)
		}
	}
}

func (p *Pool) run(j job, sc *microblock.Scratch) Result {
	start := time.Now()

	var rs RenderState
	err := rs.Regen(p.builder, j.shape, j.snow, sc)
	meshes := rs.Current()

	faces := 0
	if meshes.Base != nil {
		faces = meshes.Base.FaceCount()
	}
	if err != nil {
		var ce *CorruptionError
		if errors.As(err, &ce) {
			p.stats.Corrupted.Add(1)
		}
	} else {
		p.stats.Built.Add(1)
	}
	if p.observer != nil {
		p.observer.ObserveMesh(time.Since(start), faces, err)
	}
	return Result{Meshes: meshes, Err: err}
}

// Build отправляет снимок формы в пул и ждёт результат
func (p *Pool) Build(ctx context.Context, shape *microblock.Shape, snow SnowContext) (Meshes, error) {
	j := job{shape: shape.Clone(), snow: snow, result: make(chan Result, 1)}

	select {
	case <-p.shutdownChan:
		return Meshes{}, ErrPoolClosed
	default:
	}

	select {
	case <-p.shutdownChan:
		return Meshes{}, ErrPoolClosed
	case <-ctx.Done():
		return Meshes{}, ctx.Err()
	case p.jobs <- j:
	}

	select {
	case <-p.shutdownChan:
		return Meshes{}, ErrPoolClosed
	case <-ctx.Done():
		return Meshes{}, ctx.Err()
	case r := <-j.result:
		return r.Meshes, r.Err
	}
}

// Stats счётчики пула
func (p *Pool) Stats() (built, corrupted int64, busy int32) {
	return p.stats.Built.Load(), p.stats.Corrupted.Load(), p.stats.Busy.Load()
}

// WorkerCount число воркеров
func (p *Pool) WorkerCount() int {
	return p.workerCount
}

// Close останавливает воркеров и ждёт их завершения
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.shutdownChan)
	})
	p.wg.Wait()
}
