package microblock

import "sync"

// Scratch переиспользуемые буферы для восстановления сетки и слияния.
// Не потокобезопасен: один экземпляр на горутину-воркер.
type Scratch struct {
	cuboids     [Volume]Cuboid
	visited     [Size][Size][Size]bool
	snowVisited [Size][Size]bool
	grid        VoxelGrid
}

// NewScratch выделяет новый набор буферов
func NewScratch() *Scratch {
	return &Scratch{}
}

// Grid возвращает очищенную сетку из буфера
func (s *Scratch) Grid() *VoxelGrid {
	s.grid.Reset()
	return &s.grid
}

func (s *Scratch) resetVisited() {
	s.visited = [Size][Size][Size]bool{}
}

func (s *Scratch) resetSnowVisited() {
	s.snowVisited = [Size][Size]bool{}
}

var scratchPool = sync.Pool{
	New: func() interface{} { return NewScratch() },
}

// AcquireScratch берёт буферы из пула
func AcquireScratch() *Scratch {
	return scratchPool.Get().(*Scratch)
}

// ReleaseScratch возвращает буферы в пул
func ReleaseScratch(s *Scratch) {
	if s != nil {
		scratchPool.Put(s)
	}
}

// withScratch вызывает fn с переданным буфером или временно берёт его из пула
func withScratch(sc *Scratch, fn func(*Scratch)) {
	if sc != nil {
		fn(sc)
		return
	}
	sc = AcquireScratch()
	defer ReleaseScratch(sc)
	fn(sc)
}
