// Package publisher handles publishing measurement events to RabbitMQ.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/connection"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/neighbor"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/rrm"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// Event types and routing keys.
const (
	EventBeaconReport    = "rrm.beacon.report"
	EventNeighborResult  = "rrm.neighbor.result"
	EventNeighborRequest = "rrm.neighbor.request"

	RouteBeaconReport    = "report.beacon"
	RouteNeighborResult  = "report.neighbor"
	RouteNeighborRequest = "radio.neighbor_request"

	eventSource = "/collectors/rrm-engine"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends CloudEvents to RabbitMQ. It implements rrm.ReportSink and
// connection.Transmitter.
type Publisher struct {
	conn     *amqp.Connection
	channel  Channel
	exchange string
	timeout  time.Duration
	logger   *zap.SugaredLogger
}

// CloudEvent represents the CloudEvents 1.0 specification structure.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            string      `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`
}

// BeaconReportData is the payload of a beacon report fragment event.
type BeaconReportData struct {
	SessionIndex    int                     `json:"session_index"`
	ConnectionID    rrm.ConnectionID        `json:"connection_id"`
	RequesterBSSID  wlan.BSSID              `json:"requester_bssid"`
	DialogToken     uint8                   `json:"dialog_token"`
	RegulatoryClass int                     `json:"regulatory_class"`
	Channel         wlan.Channel            `json:"channel"`
	Source          rrm.MessageSource       `json:"source"`
	Sequence        int                     `json:"sequence"`
	Final           bool                    `json:"final"`
	Entries         []rrm.ScanRecord        `json:"entries,omitempty"`
	LegacyEntries   []rrm.LegacyBeaconEntry `json:"legacy_entries,omitempty"`
}

// NeighborResultData is the payload of a neighbor result event.
type NeighborResultData struct {
	RequesterBSSID wlan.BSSID       `json:"requester_bssid"`
	Status         neighbor.Status  `json:"status"`
	Entries        []neighbor.Entry `json:"entries"`
}

// NeighborRequestData asks the radio driver to send a neighbor report
// request frame.
type NeighborRequestData struct {
	ConnectionID rrm.ConnectionID `json:"connection_id"`
	PeerBSSID    wlan.BSSID       `json:"peer_bssid"`
	Interface    string           `json:"interface,omitempty"`
	SSID         string           `json:"ssid,omitempty"`
}

// New creates a new Publisher connected to RabbitMQ.
func New(url, exchange string, logger *zap.SugaredLogger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p := NewWithChannel(channel, exchange, logger)
	p.conn = conn
	return p, nil
}

// NewWithChannel wraps an already open channel.
func NewWithChannel(ch Channel, exchange string, logger *zap.SugaredLogger) *Publisher {
	if exchange == "" {
		exchange = "rrm.events"
	}
	return &Publisher{
		channel:  ch,
		exchange: exchange,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

// Close closes the RabbitMQ connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// DeliverReportFragment publishes one beacon report fragment. The event id
// is the broker message id consumers deduplicate on.
func (p *Publisher) DeliverReportFragment(ctx context.Context, frag rrm.ReportFragment) error {
	data := BeaconReportData{
		SessionIndex:    frag.SessionIndex,
		ConnectionID:    frag.ConnectionID,
		RequesterBSSID:  frag.RequesterBSSID,
		DialogToken:     frag.DialogToken,
		RegulatoryClass: frag.RegulatoryClass,
		Channel:         frag.Channel,
		Source:          frag.Source,
		Sequence:        frag.Sequence,
		Final:           frag.IsFinal,
		Entries:         frag.Entries,
		LegacyEntries:   frag.Legacy,
	}
	event := p.createEvent(EventBeaconReport, frag.RequesterBSSID.String(), data)
	return p.publish(ctx, event, RouteBeaconReport)
}

// PublishNeighborResult publishes the outcome of a neighbor report request.
func (p *Publisher) PublishNeighborResult(ctx context.Context, res neighbor.Result) error {
	entries := res.Entries
	if entries == nil {
		entries = []neighbor.Entry{}
	}
	data := NeighborResultData{
		RequesterBSSID: res.RequesterBSSID,
		Status:         res.Status,
		Entries:        entries,
	}
	event := p.createEvent(EventNeighborResult, res.RequesterBSSID.String(), data)
	return p.publish(ctx, event, RouteNeighborResult)
}

// TransmitNeighborRequest hands a neighbor report request to the radio
// driver over the bus.
func (p *Publisher) TransmitNeighborRequest(ctx context.Context, conn connection.Connection, ssid string) error {
	data := NeighborRequestData{
		ConnectionID: conn.ID,
		PeerBSSID:    conn.Peer,
		Interface:    conn.Interface,
		SSID:         ssid,
	}
	event := p.createEvent(EventNeighborRequest, strconv.Itoa(int(conn.ID)), data)
	return p.publish(ctx, event, RouteNeighborRequest)
}

func (p *Publisher) createEvent(eventType, subject string, data interface{}) CloudEvent {
	return CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          eventSource,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC().Format(time.RFC3339),
		DataContentType: "application/json",
		Data:            data,
	}
}

func (p *Publisher) publish(ctx context.Context, event CloudEvent, routingKey string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/cloudevents+json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			MessageId:    event.ID,
			Type:         event.Type,
			Timestamp:    time.Now(),
		},
	)

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debugw("Event published",
		"type", event.Type,
		"id", event.ID,
		"routing_key", routingKey,
	)

	return nil
}
