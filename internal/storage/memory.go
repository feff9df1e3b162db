package storage

import (
	"context"
	"sync"

	"expensio/internal/session"
)

// MemoryProvider keeps sessions in process memory. Sessions do not survive
// a restart; meant for development and tests.
type MemoryProvider struct {
	mu      sync.Mutex
	clients map[string]map[string]string
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{clients: make(map[string]map[string]string)}
}

func (p *MemoryProvider) Open(clientID string) session.Storage {
	return &memorySession{p: p, clientID: clientID}
}

// Len returns the number of clients holding at least one key.
func (p *MemoryProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

type memorySession struct {
	p        *MemoryProvider
	clientID string
}

func (s *memorySession) Read(ctx context.Context) (map[string]string, error) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	out := make(map[string]string, len(s.p.clients[s.clientID]))
	for k, v := range s.p.clients[s.clientID] {
		out[k] = v
	}
	return out, nil
}

func (s *memorySession) Write(ctx context.Context, values map[string]string) error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	fields := s.p.clients[s.clientID]
	if fields == nil {
		fields = make(map[string]string, len(values))
		s.p.clients[s.clientID] = fields
	}
	for k, v := range values {
		fields[k] = v
	}
	return nil
}

func (s *memorySession) Remove(ctx context.Context, keys ...string) error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	fields := s.p.clients[s.clientID]
	for _, k := range keys {
		delete(fields, k)
	}
	if len(fields) == 0 {
		delete(s.p.clients, s.clientID)
	}
	return nil
}
