package notify

import (
	"sync"

	"github.com/google/uuid"
)

// handlerSet is a registry of handlers shared by the Provider implementations.
type handlerSet struct {
	mu       sync.Mutex
	handlers map[uuid.UUID]Handler
	order    []uuid.UUID
}

func (s *handlerSet) add(h Handler) func() {
	id := uuid.New()
	s.mu.Lock()
	if s.handlers == nil {
		s.handlers = make(map[uuid.UUID]Handler)
	}
	s.handlers[id] = h
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.handlers, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *handlerSet) snapshot() []Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Handler, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.handlers[id])
	}
	return out
}

// emit calls every handler in registration order and reports how many ran.
func (s *handlerSet) emit(env Envelope) int {
	hs := s.snapshot()
	for _, h := range hs {
		h(env)
	}
	return len(hs)
}
