package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/microblock/internal/microblock/mesh"
)

// Collector метрики движка микроблоков.
//
// Метрики:
// * microblock_merge_duration_seconds - histogram слияний сетки
// * microblock_merge_cuboids - histogram числа кубоидов после слияния
// * microblock_mesh_duration_seconds{result} - histogram сборки мешей (ok|corrupted|error)
// * microblock_mesh_faces - histogram граней основного меша
// * microblock_corrupted_total - counter повреждённых форм
// * microblock_shapes_loaded - gauge форм в памяти
type Collector struct {
	mergeDuration prometheus.Histogram
	mergeCuboids  prometheus.Histogram
	meshDuration  *prometheus.HistogramVec
	meshFaces     prometheus.Histogram
	corrupted     prometheus.Counter
	shapes        prometheus.Gauge
}

var _ mesh.Observer = (*Collector)(nil)

// NewCollector создаёт метрики и регистрирует их в reg
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		mergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "microblock",
			Name:      "merge_duration_seconds",
			Help:      "Длительность жадного слияния сетки в кубоиды.",
			Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
		}),
		mergeCuboids: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "microblock",
			Name:      "merge_cuboids",
			Help:      "Число кубоидов после слияния.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		meshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "microblock",
			Name:      "mesh_duration_seconds",
			Help:      "Длительность сборки меша.",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		}, []string{"result"}),
		meshFaces: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "microblock",
			Name:      "mesh_faces",
			Help:      "Число граней основного меша.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		corrupted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "microblock",
			Name:      "corrupted_total",
			Help:      "Форм, кубоиды которых ссылаются на материал вне таблицы.",
		}),
		shapes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "microblock",
			Name:      "shapes_loaded",
			Help:      "Микроблоков в памяти.",
		}),
	}

	for _, col := range []prometheus.Collector{c.mergeDuration, c.mergeCuboids, c.meshDuration, c.meshFaces, c.corrupted, c.shapes} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("регистрация метрик микроблоков: %w", err)
		}
	}
	return c, nil
}

// ObserveMesh вызывается пулом после каждой сборки
func (c *Collector) ObserveMesh(duration time.Duration, faces int, err error) {
	result := "ok"
	switch {
	case errors.Is(err, mesh.ErrCorrupted):
		result = "corrupted"
		c.corrupted.Inc()
	case err != nil:
		result = "error"
	default:
		c.meshFaces.Observe(float64(faces))
	}
	c.meshDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveMerge фиксирует одно слияние
func (c *Collector) ObserveMerge(duration time.Duration, cuboids int) {
	c.mergeDuration.Observe(duration.Seconds())
	c.mergeCuboids.Observe(float64(cuboids))
}

// SetShapes число форм в памяти
func (c *Collector) SetShapes(n int) {
	c.shapes.Set(float64(n))
}
