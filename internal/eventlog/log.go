// Package eventlog is the bounded operational timeline every engine
// component reports through.
package eventlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-sniper/internal/domain"
)

// DefaultCapacity is the number of entries retained before the oldest is evicted.
const DefaultCapacity = 500

// defaultSinkBuffer is the number of entries queued for sinks before drops.
const defaultSinkBuffer = 1024

// Sink receives a copy of every entry, in append order, off the append path.
type Sink interface {
	Publish(ctx context.Context, entry domain.LogEntry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, entry domain.LogEntry) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, entry domain.LogEntry) error {
	return f(ctx, entry)
}

// Options configures Log.
type Options struct {
	Capacity   int // defaults to DefaultCapacity
	Logger     zerolog.Logger
	Sinks      []Sink
	SinkBuffer int              // defaults to 1024
	Now        func() time.Time // defaults to time.Now
	// LastSeq is the sequence number the first entry follows, so an
	// archive from a previous run keeps unique keys.
	LastSeq    uint64
}

// Log is an append-only ring of LogEntry values safe for concurrent writers.
type Log struct {
	mu      sync.Mutex
	entries []domain.LogEntry
	head    int // index of the oldest entry
	count   int
	seq     uint64

	log     zerolog.Logger
	now     func() time.Time
	limiter *Limiter

	sinks   []Sink
	queue   chan domain.LogEntry
	dropped uint64
	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool
}

// New creates an event log.
func New(opts Options) *Log {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.SinkBuffer <= 0 {
		opts.SinkBuffer = defaultSinkBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Log{
		entries: make([]domain.LogEntry, opts.Capacity),
		log:     opts.Logger,
		now:     opts.Now,
		limiter: NewLimiter(),
		sinks:   opts.Sinks,
		seq:     opts.LastSeq,
	}

	if len(l.sinks) > 0 {
		l.queue = make(chan domain.LogEntry, opts.SinkBuffer)
		l.wg.Add(1)
		go l.forward()
	}
	return l
}

// Append records message at level and returns the stored entry.
func (l *Log) Append(level domain.LogLevel, message string) domain.LogEntry {
	l.mu.Lock()
	l.seq++
	entry := domain.LogEntry{
		Seq:       l.seq,
		Timestamp: l.now(),
		Level:     level,
		Message:   message,
	}
	capacity := len(l.entries)
	if l.count < capacity {
		l.entries[(l.head+l.count)%capacity] = entry
		l.count++
	} else {
		l.entries[l.head] = entry
		l.head = (l.head + 1) % capacity
	}
	l.enqueue(entry)
	l.mu.Unlock()

	l.mirror(entry)
	return entry
}

// Info appends a formatted info entry.
func (l *Log) Info(format string, args ...any) domain.LogEntry {
	return l.Append(domain.LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a formatted warning entry.
func (l *Log) Warn(format string, args ...any) domain.LogEntry {
	return l.Append(domain.LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends a formatted error entry.
func (l *Log) Error(format string, args ...any) domain.LogEntry {
	return l.Append(domain.LevelError, fmt.Sprintf(format, args...))
}

// AppendLimited appends the entry unless key already produced one within
// every. Returns false when the entry was suppressed.
func (l *Log) AppendLimited(key string, every time.Duration, level domain.LogLevel, message string) bool {
	if every > 0 && !l.limiter.Allow(key, 1, 1/every.Seconds()) {
		return false
	}
	l.Append(level, message)
	return true
}

// ResetLimit clears the rate limit for key.
func (l *Log) ResetLimit(key string) {
	l.limiter.Reset(key)
}

// Entries returns a copy of the retained entries, oldest first.
func (l *Log) Entries() []domain.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.LogEntry, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.entries[(l.head+i)%len(l.entries)]
	}
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Dropped returns the number of entries sinks never received because their
// queue was full.
func (l *Log) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close flushes queued entries to sinks and stops forwarding.
// Appends after Close are still retained but no longer forwarded.
func (l *Log) Close() {
	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return
	}
	l.closed = true
	if l.queue != nil {
		close(l.queue)
	}
	l.closeMu.Unlock()
	l.wg.Wait()
}

// enqueue hands entry to the forwarder without blocking. Caller holds l.mu.
func (l *Log) enqueue(entry domain.LogEntry) {
	if l.queue == nil {
		return
	}
	l.closeMu.RLock()
	defer l.closeMu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- entry:
	default:
		l.dropped++
	}
}

func (l *Log) forward() {
	defer l.wg.Done()
	for entry := range l.queue {
		for _, sink := range l.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := sink.Publish(ctx, entry); err != nil {
				l.log.Warn().Err(err).Uint64("seq", entry.Seq).Msg("event log sink failed")
			}
			cancel()
		}
	}
}

func (l *Log) mirror(entry domain.LogEntry) {
	var ev *zerolog.Event
	switch entry.Level {
	case domain.LevelWarn:
		ev = l.log.Warn()
	case domain.LevelError:
		ev = l.log.Error()
	default:
		ev = l.log.Info()
	}
	ev.Uint64("seq", entry.Seq).Msg(entry.Message)
}
