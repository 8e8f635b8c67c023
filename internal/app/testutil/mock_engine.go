// Package testutil provides configurable test doubles shared by the package
// test suites.
package testutil

import (
	"context"
	"sync"
	"time"

	"speechpipe/internal/app/engine"
	"speechpipe/internal/app/model"
)

// MockEngine is a configurable engine.Engine for tests: fixed response,
// optional per-call latency and error, and call tracking.
type MockEngine struct {
	mu sync.Mutex

	DefaultLatency  time.Duration
	DefaultError    error
	DefaultResponse string

	calls []EngineCall
}

// EngineCall records one Transcribe or TranscribeFile invocation.
type EngineCall struct {
	FilePath  string
	Samples   int
	Timestamp time.Time
}

func NewMockEngine() *MockEngine {
	return &MockEngine{
		DefaultResponse: "mock transcription result",
	}
}

func (m *MockEngine) WithResponse(text string) *MockEngine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DefaultResponse = text
	return m
}

func (m *MockEngine) WithError(err error) *MockEngine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DefaultError = err
	return m
}

func (m *MockEngine) WithLatency(d time.Duration) *MockEngine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DefaultLatency = d
	return m
}

func (m *MockEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	return m.respond(ctx, EngineCall{Samples: len(samples), Timestamp: time.Now()})
}

func (m *MockEngine) TranscribeFile(ctx context.Context, path string) (string, error) {
	return m.respond(ctx, EngineCall{FilePath: path, Timestamp: time.Now()})
}

func (m *MockEngine) respond(ctx context.Context, call EngineCall) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	latency, err, response := m.DefaultLatency, m.DefaultError, m.DefaultResponse
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return response, nil
}

// CallCount returns the number of transcription calls so far.
func (m *MockEngine) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded calls.
func (m *MockEngine) Calls() []EngineCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]EngineCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CountingLoader returns an engine.Loader that serves eng for every model and
// counts invocations through the returned counter.
func CountingLoader(eng engine.Engine) (engine.Loader, *LoadCounter) {
	counter := &LoadCounter{}
	loader := func(ctx context.Context, desc model.Descriptor, accel bool) (engine.Engine, error) {
		counter.inc(desc.ID)
		return eng, nil
	}
	return loader, counter
}

// LoadCounter counts loader invocations per model id.
type LoadCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *LoadCounter) inc(modelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[modelID]++
}

// Count returns the number of loads recorded for the model.
func (c *LoadCounter) Count(modelID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[modelID]
}

// Total returns the number of loads recorded across all models.
func (c *LoadCounter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

var _ engine.Engine = (*MockEngine)(nil)
