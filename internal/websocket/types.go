package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/llm-anonymizer/internal/risk"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeAnonymization is sent after text was anonymized
	EventTypeAnonymization EventType = "anonymization"
	// EventTypeDetection is sent after a detection report was produced
	EventTypeDetection EventType = "detection"
	// EventTypePatternChange is sent when the pattern registry changes
	EventTypePatternChange EventType = "pattern_change"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// AnonymizationEvent carries anonymization metadata. Texts and matched
// values are never included.
type AnonymizationEvent struct {
	Strategy         string         `json:"strategy"`
	OriginalLength   int            `json:"original_length"`
	AnonymizedLength int            `json:"anonymized_length"`
	Replacements     int            `json:"replacements"`
	SkippedOverlaps  int            `json:"skipped_overlaps,omitempty"`
	PatternCounts    map[string]int `json:"pattern_counts"`
	ProcessingMS     float64        `json:"processing_ms"`
}

// DetectionEvent carries detection counts and risk
type DetectionEvent struct {
	TotalCount    int            `json:"total_count"`
	PatternCounts map[string]int `json:"pattern_counts"`
	RiskLevel     risk.Level     `json:"risk_level"`
	RiskScore     int            `json:"risk_score"`
	TextLength    int            `json:"text_length"`
}

// PatternChangeEvent describes a registry mutation
type PatternChangeEvent struct {
	Action string `json:"action"`
	Name   string `json:"name"`
	Class  string `json:"sensitivity_class,omitempty"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string               `json:"type"`
	Data *SubscriptionRequest `json:"data,omitempty"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows the events a client receives
type EventFilter struct {
	// MinRiskLevel drops detection events below the given level
	MinRiskLevel risk.Level `json:"min_risk_level,omitempty"`
	// Patterns keeps only events that involve at least one listed pattern
	Patterns []string `json:"patterns,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	mu           sync.RWMutex
	subscription *SubscriptionRequest
	lastPing     time.Time
}

// Subscription returns the client's current subscription, nil for all events
func (c *Client) Subscription() *SubscriptionRequest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscription
}

func (c *Client) setSubscription(s *SubscriptionRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscription = s
}

func (c *Client) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPing = time.Now()
}
