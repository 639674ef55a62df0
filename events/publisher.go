// Package events forwards broadcast session transitions to a Google Pub/Sub topic.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/ibeacon-blue/beacon"
	"github.com/user/ibeacon-blue/logger"
	"github.com/user/ibeacon-blue/wire/ibeacon"
)

const (
	defaultQueueSize = 64
	publishTimeout   = 10 * time.Second
)

// Config selects the topic. Ordering keys messages by session id; the
// subscription must have ordering enabled for it to matter.
type Config struct {
	ProjectID string
	Topic     string
	Ordering  bool
	Source    string // "source" attribute, defaults to ibeacon-blue
}

// sender publishes one message and waits for the server id.
type sender interface {
	Send(ctx context.Context, msg *pubsub.Message) (string, error)
	Stop()
}

type pubsubSender struct {
	client *pubsub.Client
	pub    *pubsub.Publisher
}

func (s *pubsubSender) Send(ctx context.Context, msg *pubsub.Message) (string, error) {
	return s.pub.Publish(ctx, msg).Get(ctx)
}

func (s *pubsubSender) Stop() {
	s.pub.Stop()
	_ = s.client.Close()
}

// Publisher is a beacon.Listener. OnEvent only queues; a single goroutine
// publishes so session transitions never wait on the network.
type Publisher struct {
	cfg   Config
	out   sender
	queue chan beacon.Event
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewPublisher connects to Pub/Sub and starts the publish loop.
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("events: missing project id or topic")
	}
	cl, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	pub := cl.Publisher(cfg.Topic)
	pub.PublishSettings.DelayThreshold = 50 * time.Millisecond
	pub.PublishSettings.Timeout = publishTimeout
	pub.EnableMessageOrdering = cfg.Ordering

	logger.Info("Events", "Pub/Sub initialized: topic=%s ordering=%v", cfg.Topic, cfg.Ordering)
	return newPublisher(cfg, &pubsubSender{client: cl, pub: pub}, defaultQueueSize), nil
}

func newPublisher(cfg Config, out sender, queueSize int) *Publisher {
	if cfg.Source == "" {
		cfg.Source = "ibeacon-blue"
	}
	p := &Publisher{
		cfg:   cfg,
		out:   out,
		queue: make(chan beacon.Event, queueSize),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

// OnEvent queues e for publishing. Events are dropped with a warning when the
// queue is full or the publisher is closed.
func (p *Publisher) OnEvent(e beacon.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- e:
	default:
		logger.Warn("Events", "⚠️  queue full, dropping %s event for %s", e.Kind, e.SessionID)
	}
}

// Close publishes what is already queued, then shuts the client down.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	p.out.Stop()
}

func (p *Publisher) run() {
	defer close(p.done)
	for e := range p.queue {
		if err := p.publish(e); err != nil {
			logger.Error("Events", "❌ publish %s event: %v", e.Kind, err)
		}
	}
}

func (p *Publisher) publish(e beacon.Event) error {
	payload, err := Payload(e)
	if err != nil {
		return fmt.Errorf("build event payload: %w", err)
	}
	logger.DebugJSON("Events", e.Kind.String()+" payload", payload)
	msg, err := message(e, payload, p.cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	id, err := p.out.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	logger.Debug("Events", "published %s event id=%s bytes=%d", e.Kind, id, len(msg.Data))
	return nil
}

// Payload renders e as a protobuf Struct.
func Payload(e beacon.Event) (*structpb.Struct, error) {
	fields := map[string]any{
		"kind":      e.Kind.String(),
		"sessionId": e.SessionID,
		"state":     e.State.String(),
		"timestamp": e.Time.UnixMilli(),
	}
	if e.Raw != (ibeacon.RawAdvertisement{}) {
		fields["raw"] = e.Raw.String()
		r := e.Raw.Record()
		fields["major"] = int(r.MajorValue())
		fields["minor"] = int(r.MinorValue())
		fields["txPower"] = int(r.TxPower())
	}
	if e.Err != nil {
		fields["error"] = e.Err.Error()
	}
	return structpb.NewStruct(fields)
}

// Message builds the Pub/Sub message for e: protojson payload plus routing attributes.
func Message(e beacon.Event, cfg Config) (*pubsub.Message, error) {
	payload, err := Payload(e)
	if err != nil {
		return nil, fmt.Errorf("build event payload: %w", err)
	}
	return message(e, payload, cfg)
}

func message(e beacon.Event, payload *structpb.Struct, cfg Config) (*pubsub.Message, error) {
	data, err := protojson.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	source := cfg.Source
	if source == "" {
		source = "ibeacon-blue"
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"source":    source,
			"type":      e.Kind.String(),
			"sessionId": e.SessionID,
		},
	}
	if cfg.Ordering {
		msg.OrderingKey = e.SessionID
	}
	return msg, nil
}
