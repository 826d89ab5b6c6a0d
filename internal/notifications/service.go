package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sketchreel/internal/config"
)

const (
	userAgent       = "sketchreel/0.1.0"
	defaultNtfyHost = "https://ntfy.sh/"
)

// Event identifies a pipeline milestone worth pushing to a phone.
type Event string

const (
	EventClipReady      Event = "clip_ready"
	EventDeadLetter     Event = "dead_letter"
	EventSyncFailed     Event = "sync_failed"
	EventStitchComplete Event = "stitch_complete"
	EventModelServerUp  Event = "model_server_up"
	EventTest           Event = "test"
)

// Payload carries event-specific values keyed by name.
type Payload map[string]any

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topicURL(topic),
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventClipReady:      cfg.Notifications.ClipReady,
			EventDeadLetter:     cfg.Notifications.DeadLetter,
			EventSyncFailed:     cfg.Notifications.SyncErrors,
			EventStitchComplete: true,
			EventModelServerUp:  true,
			EventTest:           true,
		},
	}
}

// topicURL accepts either a bare topic name or a full ntfy URL.
func topicURL(topic string) string {
	if strings.HasPrefix(topic, "http://") || strings.HasPrefix(topic, "https://") {
		return topic
	}
	return defaultNtfyHost + strings.TrimPrefix(topic, "/")
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventClipReady:
		text := fmt.Sprintf("🎞️ Clip ready: %s", payload.str("input"))
		if artifact := payload.str("artifact"); artifact != "" {
			text += "\nFile: " + artifact
		}
		return message{
			title: "sketchreel - Clip Ready",
			body:  text,
			tags:  []string{"sketchreel", "clip", "ready"},
		}, true
	case EventDeadLetter:
		text := fmt.Sprintf("🪦 Gave up on %s after %s attempts", payload.str("input"), payload.str("attempts"))
		if reason := payload.str("reason"); reason != "" {
			text += " (" + reason + ")"
		}
		if dest := payload.str("moved_to"); dest != "" {
			text += "\nMoved to: " + dest
		}
		return message{
			title:    "sketchreel - Drawing Failed",
			body:     text,
			tags:     []string{"sketchreel", "dead-letter", "review"},
			priority: "high",
		}, true
	case EventSyncFailed:
		return message{
			title:    "sketchreel - Sync Error",
			body:     fmt.Sprintf("❌ %s failed: %s", orDefault(payload.str("direction"), "sync"), orDefault(payload.str("error"), "unknown")),
			tags:     []string{"sketchreel", "sync", "error"},
			priority: "high",
		}, true
	case EventStitchComplete:
		return message{
			title: "sketchreel - Video Stitched",
			body:  fmt.Sprintf("🎬 %s clips stitched into %s", payload.str("clips"), payload.str("output")),
			tags:  []string{"sketchreel", "stitch", "completed"},
		}, true
	case EventModelServerUp:
		return message{
			title:    "sketchreel - Model Server Ready",
			body:     fmt.Sprintf("🧠 TorchServe answering at %s", payload.str("url")),
			tags:     []string{"sketchreel", "torchserve"},
			priority: "low",
		}, true
	case EventTest:
		return message{
			title:    "sketchreel - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"sketchreel", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
