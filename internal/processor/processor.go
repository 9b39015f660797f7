// Package processor pumps CDC messages from the bus through the enricher and
// republishes the result.
package processor

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"cdc-enrichment/internal/enrich"
)

// Source interface for receiving inbound CDC messages
type Source interface {
	Messages() <-chan *nats.Msg
}

// Publisher interface for publishing enriched events
type Publisher interface {
	Publish(data []byte) error
}

// Processor wires one inbound message at a time through the enricher and the
// optional JavaScript hook. The enricher is fail-open, so every message that
// is not deliberately rejected by a script reaches the publisher.
type Processor struct {
	enricher        *enrich.Enricher
	source          Source
	publisher       Publisher
	transformer     *Transformer
	logger          *logrus.Logger
	functionName    string
	functionVersion string
}

// NewProcessor creates a new enrichment processor
func NewProcessor(enricher *enrich.Enricher, source Source, publisher Publisher, transformer *Transformer, functionName, functionVersion string, logger *logrus.Logger) *Processor {
	return &Processor{
		enricher:        enricher,
		source:          source,
		publisher:       publisher,
		transformer:     transformer,
		logger:          logger,
		functionName:    functionName,
		functionVersion: functionVersion,
	}
}

// Start consumes messages until the context is cancelled or the source closes
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info("Starting enrichment processor...")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Context cancelled, stopping enrichment processor")
			return nil
		case msg, ok := <-p.source.Messages():
			if !ok {
				p.logger.Info("Message source closed, stopping enrichment processor")
				return nil
			}
			p.handle(msg)
		}
	}
}

// handle processes a single inbound message. Errors log and continue; the
// stage never drops a message except on an explicit script rejection.
func (p *Processor) handle(msg *nats.Msg) {
	enriched := p.enricher.Process(msg.Data, p.messageContext(msg))

	output := enriched
	if p.transformer != nil {
		transformed, err := p.transformer.Transform(enriched)
		switch {
		case errors.Is(err, ErrEventRejected):
			p.logger.Debugf("Event rejected by transformer: %s", msg.Subject)
			return
		case err != nil:
			// Script failures are contained: the envelope is published
			// without the script applied.
			p.logger.Errorf("Error transforming event: %v", err)
		default:
			output = transformed
		}
	}

	if err := p.publisher.Publish(output); err != nil {
		p.logger.Errorf("Error publishing event: %v", err)
		return
	}

	p.logger.Debugf("Processed message from %s (%d bytes in, %d bytes out)",
		msg.Subject, len(msg.Data), len(output))
}

// messageContext builds the per-message capability bundle handed to the
// enricher. NATS subjects have no partitions, so that capability stays absent.
func (p *Processor) messageContext(msg *nats.Msg) enrich.Context {
	fctx := enrich.Context{
		FunctionName:    func() string { return p.functionName },
		FunctionVersion: func() string { return p.functionVersion },
		Topic:           func() string { return msg.Subject },
		Logger:          logrusSink{logger: p.logger},
	}
	if id := msg.Header.Get(nats.MsgIdHdr); id != "" {
		fctx.MessageID = func() interface{} { return id }
	}
	return fctx
}

// logrusSink adapts logrus to the enricher's logging capability.
type logrusSink struct {
	logger *logrus.Logger
}

func (s logrusSink) Info(msg string)  { s.logger.Info(msg) }
func (s logrusSink) Error(msg string) { s.logger.Error(msg) }
