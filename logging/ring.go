package logging

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// DefaultRingSize é quantas entradas o visualizador guarda.
const DefaultRingSize = 800

// Entry é uma linha do visualizador.
type Entry struct {
	Time    time.Time      `json:"t"`
	Level   string         `json:"level"`
	Message string         `json:"m"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Ring guarda as últimas N entradas de log; a mais antiga sai primeiro.
type Ring struct {
	mu   sync.Mutex
	buf  []Entry
	next int
	full bool
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{buf: make([]Entry, size)}
}

func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Snapshot devolve as entradas em ordem cronológica.
func (r *Ring) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]Entry, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// Last devolve até n entradas mais recentes, em ordem cronológica.
func (r *Ring) Last(n int) []Entry {
	all := r.Snapshot()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = make([]Entry, len(r.buf))
	r.next = 0
	r.full = false
}

// Core devolve um zapcore.Core que grava no ring.
func (r *Ring) Core(level zapcore.LevelEnabler) zapcore.Core {
	return &ringCore{LevelEnabler: level, ring: r}
}

type ringCore struct {
	zapcore.LevelEnabler
	ring   *Ring
	fields []zapcore.Field
}

func (c *ringCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &ringCore{LevelEnabler: c.LevelEnabler, ring: c.ring, fields: merged}
}

func (c *ringCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *ringCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	e := Entry{Time: ent.Time, Level: ent.Level.String(), Message: ent.Message}
	if len(enc.Fields) > 0 {
		e.Fields = enc.Fields
	}
	c.ring.Append(e)
	return nil
}

func (c *ringCore) Sync() error { return nil }
