package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/terragen/internal/eventbus"
)

const defaultNatsURL = "nats://127.0.0.1:4222"

func main() {
	var (
		natsURL    = flag.String("nats", defaultNatsURL, "NATS server address")
		stream     = flag.String("stream", "TILES", "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, stats")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated, e.g. tile.created,tile.failed)")
		groups     = flag.String("groups", "", "Group IDs filter (comma-separated)")
		duration   = flag.Duration("for", 0, "Stop after duration (0 — until Ctrl+C)")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Не удалось подключиться к шине событий: %v", err)
	}
	defer bus.Close()

	switch *command {
	case "tail":
		if err := tailEvents(bus, eventbus.Filter{
			Types:  parseStringList(*eventTypes),
			Groups: parseStringList(*groups),
		}, *duration); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "stats":
		showStats(bus)

	default:
		fmt.Printf("❌ Неизвестная команда: %s\n", *command)
		fmt.Println("Доступные команды: tail, stats")
		os.Exit(1)
	}
}

// tailEvents печатает события пайплайна по мере их публикации
func tailEvents(bus eventbus.EventBus, filter eventbus.Filter, duration time.Duration) error {
	fmt.Printf("🎬 Слежение за событиями пайплайна (types=%v, groups=%v)\n", filter.Types, filter.Groups)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		printEvent(ev)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if duration > 0 {
		select {
		case <-sigCh:
		case <-time.After(duration):
		}
	} else {
		<-sigCh
	}

	fmt.Println("\n👋 Слежение остановлено")
	return nil
}

// printEvent выводит событие одной строкой
func printEvent(ev *eventbus.Envelope) {
	icon := "📨"
	switch ev.EventType {
	case eventbus.EventTileCreated:
		icon = "🗺️"
	case eventbus.EventTileHeightmap:
		icon = "✅"
	case eventbus.EventTileEdited:
		icon = "✏️"
	case eventbus.EventTileFailed:
		icon = "❌"
	}

	line := fmt.Sprintf("%s %s %-16s группа=%s стадия=%s",
		icon,
		ev.Timestamp.Format("15:04:05"),
		ev.EventType,
		ev.GroupID,
		ev.Stage,
	)
	if ev.Error != "" {
		line += " ошибка=" + ev.Error
	}
	fmt.Println(line)
}

// showStats печатает метрики шины
func showStats(bus eventbus.EventBus) {
	s := bus.Metrics()
	fmt.Println("📊 Метрики шины событий:")
	fmt.Printf("   опубликовано: %d\n", s.Published)
	fmt.Printf("   обработано:   %d\n", s.Consumed)
	fmt.Printf("   потеряно:     %d\n", s.Dropped)
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
