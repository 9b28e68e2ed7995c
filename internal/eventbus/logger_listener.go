package eventbus

import (
	"context"

	"github.com/annel0/microblock/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог.
// Поглощение и форма раскрываются, остальное пишется конвертом.
// Функция неблокирующая.
func StartLoggingListener(bus EventBus) (Subscription, error) {
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		switch ev.EventType {
		case TypeAbsorptionChanged:
			var p AbsorptionChanged
			if err := Decode(ev, &p); err == nil {
				logging.Debug("[EventBus] %s поглощение %s: %d → %d", ev.ID, p.Pos, p.Old, p.New)
				return
			}
		case TypeShapeChanged:
			var p ShapeChanged
			if err := Decode(ev, &p); err == nil {
				logging.Debug("[EventBus] %s форма %s: %s, кубоидов %d", ev.ID, p.Pos, p.Op, p.Cuboids)
				return
			}
		}
		logging.Debug("[EventBus] %s %s src=%s prio=%d size=%dB", ev.ID, ev.EventType, ev.Source, ev.Priority, len(ev.Payload))
	})
	if err != nil {
		return nil, err
	}
	logging.Info("🪵 LoggingListener: подписка на все события активирована")
	return sub, nil
}
