package session

import (
	"slices"

	"github.com/yndnr/memscope-go/internal/core/domain"
)

// Managed thread object fields.
const (
	threadNameField     = "m_Name"
	threadPriorityField = "m_Priority"
	threadIDField       = "m_ManagedThreadId"
)

// ThreadProperties decodes every managed thread object found by the heap
// index. The first successful result is kept for the life of the session;
// failures are not, so a call after InitCache can succeed where an
// earlier one failed with domain.ErrNotReady.
func (s *Session) ThreadProperties() ([]domain.ThreadProperty, error) {
	s.threadsMu.Lock()
	defer s.threadsMu.Unlock()

	if s.threads != nil {
		return slices.Clone(s.threads), nil
	}

	instances, err := s.GetInstances(s.threadType)
	if err != nil {
		return nil, err
	}

	props, err := eval(s, func() ([]domain.ThreadProperty, error) {
		t, ok := s.heap.TypeByName(s.threadType)
		if !ok {
			return nil, domain.ErrTypeNotFound.WithDetails(s.threadType)
		}
		desc := t.Descriptor()
		out := make([]domain.ThreadProperty, 0, len(instances))
		for _, addr := range instances {
			p := domain.ThreadProperty{Address: addr}
			if v, ok := s.fieldValue(addr, desc, []string{threadNameField}).(string); ok {
				p.Name = v
			}
			if v, ok := s.fieldValue(addr, desc, []string{threadPriorityField}).(int32); ok {
				p.Priority = v
			}
			if v, ok := s.fieldValue(addr, desc, []string{threadIDField}).(int32); ok {
				p.ManagedID = v
			}
			out = append(out, p)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	s.threads = props
	return slices.Clone(props), nil
}
