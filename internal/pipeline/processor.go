// Package pipeline is the message-processing entry point: transport
// delivers raw messages here, classification and execution follow.
package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"signal-trader/internal/classifier"
	"signal-trader/internal/models"
	"signal-trader/internal/store"
)

// bufferSize is the per-channel message history depth.
const bufferSize = 50

// Executor runs a classified signal through the execution pipeline.
type Executor interface {
	ExecuteSignal(ctx context.Context, sig *models.Signal, channel, rawText string, confidence float64) (bool, string)
}

// AuditLog records processed messages.
type AuditLog interface {
	LogSignal(ctx context.Context, entry *store.SignalLog) error
}

// Processor classifies inbound messages and hands signals to the
// executor. Each message is processed to completion before the caller
// dequeues the next one; channels are independent.
type Processor struct {
	parser   classifier.Parser
	executor Executor
	audit    AuditLog
	logger   zerolog.Logger

	buffers map[string][]models.RawMessage
	mu      sync.Mutex
}

// NewProcessor creates a message processor. audit may be nil to skip the
// durable log.
func NewProcessor(parser classifier.Parser, executor Executor, audit AuditLog, logger zerolog.Logger) *Processor {
	return &Processor{
		parser:   parser,
		executor: executor,
		audit:    audit,
		logger:   logger.With().Str("component", "pipeline").Logger(),
		buffers:  make(map[string][]models.RawMessage),
	}
}

// ProcessMessage classifies one message and, when it is a signal and the
// message is not a history replay, executes it. The classification is
// returned for callers that want to display it.
func (p *Processor) ProcessMessage(ctx context.Context, msg models.RawMessage, replay bool) models.Classification {
	result, err := p.parser.Parse(ctx, msg.Text)
	if err != nil {
		// The chain logs and skips failing parsers; an error here means
		// every parser failed. Treat as not a signal.
		p.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("All parsers failed")
		result = models.Classification{}
	}

	p.buffer(msg)

	status := "ignored"
	executed := false
	if result.IsSignal && result.Signal != nil {
		if replay {
			status = "replayed"
			p.logger.Debug().
				Str("channel", msg.Channel).
				Str("symbol", result.Signal.Symbol).
				Msg("Replay message classified, execution skipped")
		} else {
			ok, reason := p.executor.ExecuteSignal(ctx, result.Signal, msg.Channel, msg.Text, result.Confidence)
			executed = ok
			if ok {
				status = "executed"
			} else {
				status = reason
			}
			p.logger.Info().
				Str("channel", msg.Channel).
				Str("symbol", result.Signal.Symbol).
				Bool("executed", ok).
				Str("result", reason).
				Msg("Signal processed")
		}
	}

	p.logAudit(ctx, msg, result, status, executed)

	return result
}

// Recent returns the channel's buffered messages, newest first.
func (p *Processor) Recent(channel string) []models.RawMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := p.buffers[channel]
	out := make([]models.RawMessage, len(buf))
	copy(out, buf)
	return out
}

// buffer prepends the message to its channel's ring, evicting the oldest
// past the depth limit.
func (p *Processor) buffer(msg models.RawMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := p.buffers[msg.Channel]
	buf = append([]models.RawMessage{msg}, buf...)
	if len(buf) > bufferSize {
		buf = buf[:bufferSize]
	}
	p.buffers[msg.Channel] = buf
}

// logAudit writes the processed-message row. Best-effort.
func (p *Processor) logAudit(ctx context.Context, msg models.RawMessage, result models.Classification, status string, executed bool) {
	if p.audit == nil {
		return
	}

	entry := &store.SignalLog{
		Channel:    msg.Channel,
		Message:    msg.Text,
		Parsed:     result.Signal,
		Status:     status,
		Confidence: result.Confidence,
		Executed:   executed,
	}
	if err := p.audit.LogSignal(ctx, entry); err != nil {
		p.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("Audit log write failed")
	}
}
