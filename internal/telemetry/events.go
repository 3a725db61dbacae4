package telemetry

import (
	"math/rand/v2"
	"time"
)

// interactionEvent is one simulated IDE interaction fed into
// recordTrajectoryAnalytics (spec §4.5).
type interactionEvent struct {
	Type      string    `json:"type"`
	Pane      string    `json:"pane"`
	EventTime time.Time `json:"event_time"`
}

// interactionEvents implements the liveness-gap mitigation of spec §4.5:
// a burst of TYPING events if activity was very recent, otherwise a sparser
// mix of SCROLL/MOUSE_OVER with an occasional window-focus toggle.
func (l *Loop) interactionEvents() []interactionEvent {
	now := time.Now()

	if l.sinceActivity() < liveWindow {
		n := 3 + rand.IntN(6) // 3-8
		events := make([]interactionEvent, n)
		for i := range events {
			backdate := time.Duration(rand.Int64N(int64(5 * time.Second)))
			events[i] = interactionEvent{Type: "TYPING", Pane: "EDITOR_PANE", EventTime: now.Add(-backdate)}
		}
		return events
	}

	n := 1 + rand.IntN(3) // 1-3
	events := make([]interactionEvent, 0, n+1)
	for i := 0; i < n; i++ {
		backdate := time.Duration(rand.Int64N(int64(10 * time.Second)))
		eventType := "MOUSE_OVER"
		if rand.Float64() < 0.6 {
			eventType = "SCROLL"
		}
		events = append(events, interactionEvent{Type: eventType, Pane: "EDITOR_PANE", EventTime: now.Add(-backdate)})
	}
	if rand.Float64() < 0.1 {
		focusType := "WINDOW_FOCUS"
		if rand.Float64() < 0.5 {
			focusType = "WINDOW_BLUR"
		}
		events = append(events, interactionEvent{Type: focusType, Pane: "IDE_WINDOW", EventTime: now})
	}
	return events
}

// codeAssistMetricsPayload is the body of recordCodeAssistMetrics (spec §4.5).
type codeAssistMetricsPayload struct {
	CompletionsShown    int     `json:"completions_shown"`
	CompletionsAccepted int     `json:"completions_accepted"`
	AcceptRate          float64 `json:"accept_rate"`
	LatencyMs           float64 `json:"latency_ms"`
	InteractionType     string  `json:"interaction_type"`
}

func codeAssistMetrics() codeAssistMetricsPayload {
	shown := 1 + rand.IntN(3) // 1-3
	accepted := 0
	interaction := "DISMISS"
	if rand.Float64() < 0.7 {
		accepted = 1
		interaction = "ACCEPT"
	}

	acceptRate := 0.0
	if shown > 0 {
		acceptRate = float64(accepted) / float64(shown)
	}

	return codeAssistMetricsPayload{
		CompletionsShown:    shown,
		CompletionsAccepted: accepted,
		AcceptRate:          acceptRate,
		LatencyMs:           100 + rand.Float64()*600,
		InteractionType:     interaction,
	}
}
