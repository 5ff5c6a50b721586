package eventbus

import (
	"context"

	"github.com/annel0/terragen/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в стандартный лог.
// Функция неблокирующая.
func StartLoggingListener(bus EventBus) error {
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		if ev.Error != "" {
			logging.Warn("[EventBus] %s %s group=%s stage=%s err=%s", ev.ID, ev.EventType, ev.GroupID, ev.Stage, ev.Error)
			return
		}
		logging.Debug("[EventBus] %s %s group=%s stage=%s", ev.ID, ev.EventType, ev.GroupID, ev.Stage)
	})
	if err != nil {
		return err
	}
	logging.Info("🪵 LoggingListener: подписка на все события активирована")
	return nil
}
