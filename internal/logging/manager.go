package logging

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Имена компонентов движка; каждый пишет в свой файл logs/<компонент>.log
const (
	ComponentMicroblock = "microblock"
	ComponentMesh       = "mesh"
	ComponentStorage    = "storage"
	ComponentAPI        = "api"
)

// LoggerManager реестр логгеров по компонентам. Логгер создаётся при первом
// обращении и живёт до CloseAll.
type LoggerManager struct {
	mu      sync.RWMutex
	loggers map[string]*Logger

	// уровни, применённые через ApplyLevels; нулевые до первого вызова
	console, file LogLevel
	levelsSet     bool
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager общий реестр процесса
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = &LoggerManager{loggers: make(map[string]*Logger)}
	})
	return globalManager
}

// GetLogger логгер компонента; новый получает уровни последнего ApplyLevels
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.RLock()
	logger, ok := lm.loggers[component]
	lm.mu.RUnlock()
	if ok {
		return logger, nil
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if logger, ok := lm.loggers[component]; ok {
		return logger, nil
	}

	logger, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("логгер компонента %s: %w", component, err)
	}
	if lm.levelsSet {
		logger.SetLevels(lm.console, lm.file)
	}
	lm.loggers[component] = logger
	return logger, nil
}

// Register подставляет готовый логгер для компонента (тесты, CLI)
func (lm *LoggerManager) Register(component string, logger *Logger) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.loggers[component] = logger
}

// MustGetLogger как GetLogger, но без ошибки: если файл лога не открылся,
// компонент пишет только в консоль.
func (lm *LoggerManager) MustGetLogger(component string) *Logger {
	logger, err := lm.GetLogger(component)
	if err == nil {
		return logger
	}
	return &Logger{
		component:       component,
		consoleLogger:   defaultLogger.consoleLogger,
		minConsoleLevel: INFO,
		minFileLevel:    ERROR,
	}
}

// ApplyLevels выставляет уровни всем компонентам, в том числе созданным позже
func (lm *LoggerManager) ApplyLevels(console, file LogLevel) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.console, lm.file, lm.levelsSet = console, file, true
	for _, logger := range lm.loggers {
		logger.SetLevels(console, file)
	}
}

// SetLogLevel меняет уровни одного компонента
func (lm *LoggerManager) SetLogLevel(component string, console, file LogLevel) error {
	lm.mu.RLock()
	logger, ok := lm.loggers[component]
	lm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("логгер компонента %s не найден", component)
	}
	logger.SetLevels(console, file)
	return nil
}

// ListComponents имена компонентов по алфавиту
func (lm *LoggerManager) ListComponents() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	names := make([]string, 0, len(lm.loggers))
	for name := range lm.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseAll закрывает файлы всех компонентов и очищает реестр
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var errs []error
	for name, logger := range lm.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("закрытие логгера %s: %w", name, err))
		}
	}
	lm.loggers = make(map[string]*Logger)
	return errors.Join(errs...)
}

func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().MustGetLogger(component)
}

func GetMicroblockLogger() *Logger { return GetComponentLogger(ComponentMicroblock) }
func GetMeshLogger() *Logger       { return GetComponentLogger(ComponentMesh) }
func GetStorageLogger() *Logger    { return GetComponentLogger(ComponentStorage) }
func GetAPILogger() *Logger        { return GetComponentLogger(ComponentAPI) }
