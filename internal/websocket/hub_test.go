package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/llm-anonymizer/internal/anonymizer"
	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"github.com/raaihank/llm-anonymizer/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func allEvents() *HubConfig {
	return &HubConfig{
		BroadcastAnonymizations: true,
		BroadcastDetections:     true,
		BroadcastPatternChanges: true,
	}
}

func startHub(t *testing.T, cfg *HubConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server, want int64) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return hub.GetStats().ActiveConnections == want
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func detection(level risk.Level) Event {
	return Event{Type: EventTypeDetection, Data: DetectionEvent{RiskLevel: level, PatternCounts: map[string]int{"ssn": 1}}}
}

func TestHubBroadcast(t *testing.T) {
	hub, srv := startHub(t, allEvents())
	conn := dial(t, hub, srv, 1)

	hub.BroadcastEvent(detection(risk.LevelMedium))

	event := readEvent(t, conn)
	assert.Equal(t, "detection", event["type"])
	data := event["data"].(map[string]any)
	assert.Equal(t, "MEDIUM", data["risk_level"])
}

func TestHubDisabledEventsAreNotSent(t *testing.T) {
	cfg := allEvents()
	cfg.BroadcastDetections = false
	hub, srv := startHub(t, cfg)
	conn := dial(t, hub, srv, 1)

	hub.BroadcastEvent(detection(risk.LevelHigh))
	hub.BroadcastEvent(Event{Type: EventTypePatternChange, Data: PatternChangeEvent{Action: "added", Name: "ticket"}})

	event := readEvent(t, conn)
	assert.Equal(t, "pattern_change", event["type"])
}

func TestHubSubscription(t *testing.T) {
	hub, srv := startHub(t, allEvents())
	conn := dial(t, hub, srv, 1)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "subscribe",
		"data": map[string]any{
			"events": []string{"detection"},
			"filter": map[string]any{"min_risk_level": "HIGH"},
		},
	}))
	// the pong confirms the subscription was processed
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, "pong", readEvent(t, conn)["type"])

	hub.BroadcastEvent(Event{Type: EventTypePatternChange, Data: PatternChangeEvent{Action: "added", Name: "x"}})
	hub.BroadcastEvent(detection(risk.LevelLow))
	hub.BroadcastEvent(detection(risk.LevelHigh))

	event := readEvent(t, conn)
	assert.Equal(t, "detection", event["type"])
	assert.Equal(t, "HIGH", event["data"].(map[string]any)["risk_level"])
}

func TestHubConnectionEvents(t *testing.T) {
	cfg := allEvents()
	cfg.BroadcastConnections = true
	hub, srv := startHub(t, cfg)

	first := dial(t, hub, srv, 1)
	dial(t, hub, srv, 2)

	event := readEvent(t, first)
	assert.Equal(t, "connection", event["type"])
	assert.Equal(t, "connected", event["data"].(map[string]any)["action"])
}

func TestHubBasicAuth(t *testing.T) {
	cfg := allEvents()
	cfg.Username = "admin"
	cfg.Password = "s3cret"
	hub, srv := startHub(t, cfg)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.SetBasicAuth("admin", "s3cret")
	header.Set("Authorization", req.Header.Get("Authorization"))
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool { return hub.GetStats().ActiveConnections == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubMaxConnections(t *testing.T) {
	cfg := allEvents()
	cfg.MaxConnections = 1
	hub, srv := startHub(t, cfg)
	dial(t, hub, srv, 1)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestFromPipelineEvent(t *testing.T) {
	t.Run("AnonymizationCarriesNoText", func(t *testing.T) {
		event, ok := FromPipelineEvent(anonymizer.Event{
			Type: anonymizer.EventAnonymized,
			Result: &anonymizer.Result{
				AnonymizedText: "***-**-6789",
				Metadata: anonymizer.Metadata{
					ReplacementsCount: 1,
					Replacements:      []anonymizer.ReplacementRecord{{Pattern: patterns.SSN, Original: "123-45-6789", Replacement: "***-**-6789"}},
				},
			},
		})
		require.True(t, ok)
		raw, err := json.Marshal(event)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "123-45-6789")
		assert.NotContains(t, string(raw), "6789")
		assert.Equal(t, map[string]int{patterns.SSN: 1}, event.Data.(AnonymizationEvent).PatternCounts)
	})

	t.Run("Detection", func(t *testing.T) {
		event, ok := FromPipelineEvent(anonymizer.Event{
			Type:        anonymizer.EventDetected,
			InputLength: 12,
			Report: &anonymizer.DetectionReport{
				Detected:  map[string]anonymizer.Detection{patterns.Email: {Count: 2, Examples: []string{"a@b.io"}}},
				RiskLevel: risk.LevelLow,
				RiskScore: 4,
			},
		})
		require.True(t, ok)
		data := event.Data.(DetectionEvent)
		assert.Equal(t, 2, data.PatternCounts[patterns.Email])
		assert.Equal(t, 12, data.TextLength)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, ok := FromPipelineEvent(anonymizer.Event{Type: anonymizer.EventPatternChanged})
		assert.False(t, ok)
	})
}

func TestApplyEventFilter(t *testing.T) {
	f := &EventFilter{Patterns: []string{"ssn"}}
	assert.True(t, applyEventFilter(f, detection(risk.LevelLow)))
	assert.False(t, applyEventFilter(f, Event{Type: EventTypeAnonymization, Data: AnonymizationEvent{PatternCounts: map[string]int{"email": 1}}}))
	assert.True(t, applyEventFilter(f, Event{Type: EventTypePatternChange, Data: PatternChangeEvent{Name: "ssn"}}))
	assert.True(t, applyEventFilter(&EventFilter{MinRiskLevel: risk.LevelMedium}, detection(risk.LevelHigh)))
	assert.False(t, applyEventFilter(&EventFilter{MinRiskLevel: risk.LevelMedium}, detection(risk.LevelLow)))
}
