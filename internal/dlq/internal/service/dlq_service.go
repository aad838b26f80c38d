// Package service moves messages the warehouse sink cannot archive into the
// dead-letter stream, either on a MaxDeliver advisory or on request.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/moveoone/moveo/internal/observability"
)

// Dead-letter header names.
const (
	HeaderOriginalSubject  = "X-DLQ-Original-Subject"
	HeaderOriginalStream   = "X-DLQ-Original-Stream"
	HeaderOriginalConsumer = "X-DLQ-Original-Consumer"
	HeaderOriginalSequence = "X-DLQ-Original-Sequence"
	HeaderDeliveries       = "X-DLQ-Deliveries"
	HeaderReason           = "X-DLQ-Reason"
)

// ReasonMaxDeliveries marks messages moved after exhausting redeliveries.
const ReasonMaxDeliveries = "max_deliveries"

// advisorySubject builds the NATS advisory subject for MaxDeliver exceeded events.
// Format: $JS.EVENT.ADVISORY.CONSUMER.MAX_DELIVERIES.<stream>.<consumer>
func advisorySubject(streamName, consumerName string) string {
	return fmt.Sprintf("$JS.EVENT.ADVISORY.CONSUMER.MAX_DELIVERIES.%s.%s", streamName, consumerName)
}

// maxDeliverAdvisory is the payload JetStream emits when a message has been
// delivered MaxDeliver times without an ACK.
type maxDeliverAdvisory struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Stream     string `json:"stream"`
	Consumer   string `json:"consumer"`
	StreamSeq  uint64 `json:"stream_seq"`
	Deliveries uint64 `json:"deliveries"`
}

// Publisher publishes to JetStream.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Subscriber subscribes on core NATS.
type Subscriber interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// MessageFetcher loads a message from the event stream by sequence.
type MessageFetcher func(ctx context.Context, seq uint64) (*jetstream.RawStreamMsg, error)

// origin describes where a dead-lettered message came from.
type origin struct {
	subject    string
	stream     string
	consumer   string
	sequence   uint64
	deliveries uint64
	reason     string
}

// DLQService republishes failed messages under the dead-letter prefix.
type DLQService struct {
	pub           Publisher
	sub           Subscriber
	fetch         MessageFetcher
	subjectPrefix string
	metrics       *observability.Metrics
	logger        *slog.Logger
	streamName    string
	consumerNames []string
	subs          []*nats.Subscription
}

// NewDLQService creates a new DLQ service.
func NewDLQService(
	pub Publisher,
	sub Subscriber,
	fetch MessageFetcher,
	subjectPrefix string,
	streamName string,
	consumerNames []string,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *DLQService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DLQService{
		pub:           pub,
		sub:           sub,
		fetch:         fetch,
		subjectPrefix: subjectPrefix,
		metrics:       metrics,
		logger:        logger.With("component", "dlq-service"),
		streamName:    streamName,
		consumerNames: consumerNames,
	}
}

// Start subscribes to the MaxDeliver advisory of each monitored consumer.
func (s *DLQService) Start(ctx context.Context) error {
	for _, consumerName := range s.consumerNames {
		subject := advisorySubject(s.streamName, consumerName)
		s.logger.Info("subscribing to MaxDeliver advisory",
			"subject", subject,
			"consumer", consumerName,
		)

		sub, err := s.sub.Subscribe(subject, s.handleAdvisory(ctx))
		if err != nil {
			s.Stop()
			return fmt.Errorf("failed to subscribe to advisory %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.logger.Info("DLQ service started",
		"stream", s.streamName,
		"consumers", s.consumerNames,
	)
	return nil
}

// handleAdvisory returns a handler that moves the message named by a
// MaxDeliver advisory into the dead-letter stream.
func (s *DLQService) handleAdvisory(ctx context.Context) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var advisory maxDeliverAdvisory
		if err := json.Unmarshal(msg.Data, &advisory); err != nil {
			s.logger.Error("failed to parse MaxDeliver advisory",
				"error", err,
				"data", string(msg.Data),
			)
			return
		}

		s.logger.Warn("MaxDeliver exceeded",
			"stream", advisory.Stream,
			"consumer", advisory.Consumer,
			"stream_seq", advisory.StreamSeq,
			"deliveries", advisory.Deliveries,
		)

		raw, err := s.fetch(ctx, advisory.StreamSeq)
		if err != nil {
			s.logger.Error("failed to fetch original message for DLQ",
				"stream", advisory.Stream,
				"stream_seq", advisory.StreamSeq,
				"error", err,
			)
			return
		}

		err = s.republish(ctx, raw.Data, raw.Header, origin{
			subject:    raw.Subject,
			stream:     advisory.Stream,
			consumer:   advisory.Consumer,
			sequence:   advisory.StreamSeq,
			deliveries: advisory.Deliveries,
			reason:     ReasonMaxDeliveries,
		})
		if err != nil {
			s.logger.Error("failed to publish message to DLQ",
				"stream_seq", advisory.StreamSeq,
				"error", err,
			)
		}
	}
}

// DeadLetter moves a message the caller could not process. The caller still
// owns the message and must Term it.
func (s *DLQService) DeadLetter(ctx context.Context, msg jetstream.Msg, reason string) error {
	o := origin{subject: msg.Subject(), reason: reason}
	if md, err := msg.Metadata(); err == nil && md != nil {
		o.stream = md.Stream
		o.consumer = md.Consumer
		o.sequence = md.Sequence.Stream
		o.deliveries = md.NumDelivered
	}
	return s.republish(ctx, msg.Data(), msg.Headers(), o)
}

func (s *DLQService) republish(ctx context.Context, data []byte, hdr nats.Header, o origin) error {
	headers := nats.Header{}
	for k, v := range hdr {
		headers[k] = v
	}
	headers.Set(HeaderOriginalSubject, o.subject)
	headers.Set(HeaderOriginalStream, o.stream)
	headers.Set(HeaderOriginalConsumer, o.consumer)
	headers.Set(HeaderOriginalSequence, strconv.FormatUint(o.sequence, 10))
	headers.Set(HeaderDeliveries, strconv.FormatUint(o.deliveries, 10))
	headers.Set(HeaderReason, o.reason)

	dlqSubject := s.subjectPrefix + o.subject
	if _, err := s.pub.PublishMsg(ctx, &nats.Msg{
		Subject: dlqSubject,
		Data:    data,
		Header:  headers,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", dlqSubject, err)
	}

	if s.metrics != nil {
		reason := o.reason
		if reason != ReasonMaxDeliveries {
			reason = "poison"
		}
		s.metrics.DLQMessages.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("consumer", o.consumer),
				attribute.String("reason", reason),
			),
		)
	}

	s.logger.Warn("message moved to DLQ",
		"dlq_subject", dlqSubject,
		"stream_seq", o.sequence,
		"consumer", o.consumer,
		"deliveries", o.deliveries,
		"reason", o.reason,
	)
	return nil
}

// Stop unsubscribes from all advisory subscriptions.
func (s *DLQService) Stop() {
	for _, sub := range s.subs {
		if sub.IsValid() {
			if err := sub.Unsubscribe(); err != nil {
				s.logger.Error("failed to unsubscribe from advisory",
					"subject", sub.Subject,
					"error", err,
				)
			}
		}
	}
	s.subs = nil
	s.logger.Info("DLQ service stopped")
}
