// Package pipeline glues the MQTT feed, the decoder and the store together:
// bounded channels between stages, batching by size and age, and retry or
// drop decisions for everything that can fail.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/viljami/ruuvi-home/internal/cache"
	"github.com/viljami/ruuvi-home/internal/ruuvi"
	"github.com/viljami/ruuvi-home/internal/store"
	"github.com/viljami/ruuvi-home/pkg/config"
	"github.com/viljami/ruuvi-home/pkg/metrics"
	"github.com/viljami/ruuvi-home/pkg/mqtt"
)

// receiveBuffer bounds raw messages parked between the MQTT handler and the
// decode stage. Kept small: the real buffer is the broker's QoS-1 queue,
// which holds deliveries while the handler blocks.
const receiveBuffer = 64

// Writer is the slice of the store the pipeline commits through
type Writer interface {
	InsertBatch(ctx context.Context, batch []ruuvi.SensorReading) (*store.CommitInfo, error)
}

// rawMessage is one MQTT delivery before decoding. Discarded after the
// decode attempt.
type rawMessage struct {
	topic      string
	payload    []byte
	receivedAt time.Time
}

// Pipeline runs the ingestion stages: receiver, decoders, batcher, writer
type Pipeline struct {
	cfg     *config.Config
	mqtt    mqtt.Client
	store   Writer
	latest  *cache.Latest // nil when the cache is disabled
	metrics *metrics.Metrics
	logger  *slog.Logger

	raw      chan rawMessage
	readings chan ruuvi.SensorReading
	batches  chan []ruuvi.SensorReading
	done     chan struct{}
}

// New creates a pipeline wired to the given collaborators. latest may be nil.
func New(cfg *config.Config, mqttClient mqtt.Client, storeWriter Writer, latest *cache.Latest, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		mqtt:     mqttClient,
		store:    storeWriter,
		latest:   latest,
		metrics:  m,
		logger:   logger,
		raw:      make(chan rawMessage, receiveBuffer),
		readings: make(chan ruuvi.SensorReading, cfg.ChannelCapacity),
		batches:  make(chan []ruuvi.SensorReading, 1),
		done:     make(chan struct{}),
	}
}

// Run starts the stages in reverse data-flow order (writer first, receiver
// last), then blocks until ctx is cancelled and drains everything within the
// shutdown timeout. Batches not committed by the deadline are lost: their
// messages were already accepted from the broker.
func (p *Pipeline) Run(ctx context.Context) error {
	writeCtx, writeCancel := context.WithCancel(context.Background())
	defer writeCancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		p.writeLoop(writeCtx)
	}()

	batcherDone := make(chan struct{})
	go func() {
		defer close(batcherDone)
		p.batchLoop()
	}()

	var decodeWG sync.WaitGroup
	for i := 0; i < p.cfg.DecodeWorkers; i++ {
		decodeWG.Add(1)
		go func() {
			defer decodeWG.Done()
			p.decodeLoop()
		}()
	}

	if err := p.mqtt.Subscribe(p.cfg.MQTTTopic, 1, p.handleMessage); err != nil {
		close(p.done)
		decodeWG.Wait()
		close(p.readings)
		<-batcherDone
		<-writerDone
		return err
	}

	p.logger.Info("Ingestion pipeline running",
		"topic", p.cfg.MQTTTopic,
		"batch_max_rows", p.cfg.BatchMaxRows,
		"batch_max_age", p.cfg.BatchMaxAge,
		"decode_workers", p.cfg.DecodeWorkers)

	<-ctx.Done()
	p.logger.Info("Shutting down ingestion pipeline")

	deadline := time.After(p.cfg.ShutdownTimeout)

	if err := p.mqtt.Unsubscribe(p.cfg.MQTTTopic); err != nil {
		p.logger.Warn("Failed to unsubscribe", "error", err)
	}

	// Receiver stops accepting; decoders drain the raw channel and exit
	close(p.done)
	decodeWG.Wait()

	// Batcher drains, flushes the pending batch once, and closes the batch
	// channel; the writer then commits what is queued.
	close(p.readings)

	select {
	case <-writerDone:
		p.logger.Info("Ingestion pipeline drained")
	case <-deadline:
		writeCancel()
		<-writerDone
		p.logger.Warn("Shutdown deadline exceeded, unflushed batches lost")
	}

	return nil
}

// handleMessage is the receiver stage, run on the MQTT client's dispatch
// goroutine. Blocking here parks further QoS-1 deliveries at the broker.
func (p *Pipeline) handleMessage(msg mqtt.Message) {
	select {
	case <-p.done:
		return
	default:
	}

	p.metrics.MessagesReceived.Inc()

	m := rawMessage{
		topic:      msg.Topic(),
		payload:    append([]byte(nil), msg.Payload()...),
		receivedAt: time.Now(),
	}

	select {
	case p.raw <- m:
	case <-p.done:
	}
}

// decodeLoop is the decode stage: topic parse, envelope parse, payload
// decode, range gatekeeping. Failures are counted and dropped, never
// retried.
func (p *Pipeline) decodeLoop() {
	for {
		select {
		case m := <-p.raw:
			p.process(m)
		case <-p.done:
			// Drain what the receiver already accepted
			for {
				select {
				case m := <-p.raw:
					p.process(m)
				default:
					return
				}
			}
		}
	}
}

func (p *Pipeline) process(m rawMessage) {
	gateway, sensor, err := mqtt.ParseGatewayTopic(m.topic)
	if err != nil {
		p.metrics.MessagesDroppedByTopic.Inc()
		p.logger.Debug("Dropped message on unexpected topic", "topic", m.topic)
		return
	}

	env, adv, err := ruuvi.ParseEnvelope(m.payload)
	if err != nil {
		p.countDecodeError(err)
		p.logger.Debug("Failed to parse gateway envelope", "topic", m.topic, "error", err)
		return
	}

	reading, err := ruuvi.Decode(adv, sensor)
	if err != nil {
		p.countDecodeError(err)
		p.logger.Debug("Failed to decode advertisement", "sensor", sensor, "error", err)
		return
	}

	reading.GatewayMAC = gateway
	reading.RSSIDBm = env.RSSI
	reading.ObservedAt = env.ObservedAt(m.receivedAt)

	// The batcher keeps consuming until every decoder has exited, so a
	// plain send is safe even while draining.
	p.readings <- *reading
}

func (p *Pipeline) countDecodeError(err error) {
	kind := "unknown"
	if decodeErr, ok := err.(ruuvi.DecodeError); ok {
		kind = decodeErr.Kind()
	}
	p.metrics.DecodeErrors.WithLabelValues(kind).Inc()
}

// batchLoop accumulates readings until the batch is full or the oldest
// reading in it reaches the max age, then hands the batch to the writer
func (p *Pipeline) batchLoop() {
	defer close(p.batches)

	batch := make([]ruuvi.SensorReading, 0, p.cfg.BatchMaxRows)

	timer := time.NewTimer(p.cfg.BatchMaxAge)
	if !timer.Stop() {
		<-timer.C
	}
	timerActive := false

	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.batches <- batch
		batch = make([]ruuvi.SensorReading, 0, p.cfg.BatchMaxRows)
	}

	for {
		select {
		case r, ok := <-p.readings:
			if !ok {
				if timerActive && !timer.Stop() {
					<-timer.C
				}
				flush()
				return
			}
			batch = append(batch, r)
			p.metrics.QueueDepth.Set(float64(len(p.readings)))
			if len(batch) == 1 {
				timer.Reset(p.cfg.BatchMaxAge)
				timerActive = true
			}
			if len(batch) >= p.cfg.BatchMaxRows {
				if timerActive && !timer.Stop() {
					<-timer.C
				}
				timerActive = false
				flush()
			}
		case <-timer.C:
			timerActive = false
			flush()
		}
	}
}

// writeLoop is the single writer task; batches commit sequentially
func (p *Pipeline) writeLoop(ctx context.Context) {
	for batch := range p.batches {
		p.commit(ctx, batch)
	}
}
