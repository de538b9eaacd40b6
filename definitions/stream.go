package definitions

import (
	"fmt"
	"maps"

	"github.com/snow-ghost/trials/suggest"
)

// Stream yields trial descriptors one at a time. It is finite and cannot be
// rewound. Use it like bufio.Scanner:
//
//	for d, ok := s.Next(); ok; d, ok = s.Next() { ... }
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	items []TrialDescriptor

	suggester suggest.Suggester
	prefix    string

	total int
	count int
	err   error
}

func newListStream(items []TrialDescriptor) *Stream {
	return &Stream{items: items, total: len(items)}
}

func newGeneratedStream(s suggest.Suggester, total int, prefix string) *Stream {
	return &Stream{suggester: s, total: total, prefix: prefix}
}

// Next returns the next descriptor. ok is false once the stream is exhausted
// or the suggester failed.
func (s *Stream) Next() (TrialDescriptor, bool) {
	if s.err != nil || s.count >= s.total {
		return TrialDescriptor{}, false
	}

	if s.suggester == nil {
		d := s.items[s.count]
		s.count++
		return TrialDescriptor{Name: d.Name, Hyperparameters: maps.Clone(d.Hyperparameters)}, true
	}

	params, err := s.suggester.SuggestNext()
	if err != nil {
		s.err = fmt.Errorf("suggesting hyperparameters for trial %d: %w", s.count+1, err)
		return TrialDescriptor{}, false
	}
	s.count++
	return TrialDescriptor{Name: fmt.Sprintf("%s%d", s.prefix, s.count), Hyperparameters: params}, true
}

// Err returns the error that stopped the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// Len is the total number of descriptors the stream yields.
func (s *Stream) Len() int {
	return s.total
}

// Remaining is the number of descriptors not yet returned.
func (s *Stream) Remaining() int {
	return s.total - s.count
}
