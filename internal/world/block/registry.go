package block

import (
	"fmt"
	"sort"
	"sync"
)

// Константы ID встроенных блоков
const (
	AirBlockID BlockID = iota // 0

	// Каменные материалы (начиная с 1)
	GraniteBlockID  BlockID = 1
	AndesiteBlockID BlockID = 2
	ClayBlockID     BlockID = 3

	// Прозрачные и светящиеся (начиная с 100)
	GlassBlockID  BlockID = 100
	LampBlockID   BlockID = 101
	SnowLayerID   BlockID = 102
	PlanksBlockID BlockID = 103

	// Микроблоки (начиная с 1000): вариант без снега и со снегом
	MicroBlockID     BlockID = 1000
	MicroBlockSnowID BlockID = 1001
)

// DefaultMaterialCode код материала, используемого при невосстановимых данных
const DefaultMaterialCode = "rock-granite"

// Registry хранит свойства материалов и отображение код ↔ id
type Registry struct {
	mu     sync.RWMutex
	byID   map[BlockID]*Properties
	byCode map[string]BlockID
}

// NewRegistry создаёт пустой регистр
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[BlockID]*Properties),
		byCode: make(map[string]BlockID),
	}
}

// Register добавляет или заменяет материал
func (r *Registry) Register(p Properties) error {
	if p.Code == "" {
		return fmt.Errorf("материал %d без кода", p.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prevID, ok := r.byCode[p.Code]; ok && prevID != p.ID {
		return fmt.Errorf("код %q уже занят блоком %d", p.Code, prevID)
	}
	if prev, ok := r.byID[p.ID]; ok && prev.Code != p.Code {
		delete(r.byCode, prev.Code)
	}

	props := p
	r.byID[p.ID] = &props
	r.byCode[p.Code] = p.ID
	return nil
}

// Get возвращает свойства для указанного ID
func (r *Registry) Get(id BlockID) (*Properties, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// GetByCode возвращает свойства по коду ассета
func (r *Registry) GetByCode(code string) (*Properties, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCode[code]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

// Material реализует источник материалов для микроблоков
func (r *Registry) Material(id BlockID) (*Properties, bool) {
	return r.Get(id)
}

// ResolveCode возвращает id блока по коду
func (r *Registry) ResolveCode(code string) (BlockID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCode[code]
	return id, ok
}

// IDs возвращает отсортированные идентификаторы
func (r *Registry) IDs() []BlockID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]BlockID, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len количество материалов
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

var registry = NewRegistry()

// Default возвращает глобальный регистр
func Default() *Registry {
	return registry
}

// Register добавляет материал в глобальный регистр
func Register(p Properties) error {
	return registry.Register(p)
}

// Get возвращает свойства для указанного ID из глобального регистра
func Get(id BlockID) (*Properties, bool) {
	return registry.Get(id)
}

// IsValidBlockID проверяет, является ли ID допустимым идентификатором блока
func IsValidBlockID(id BlockID) bool {
	_, exists := registry.Get(id)
	return exists
}
