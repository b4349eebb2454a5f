package bridge

// NonceSequencer hands out outbound swap nonces, starting at 0.
type NonceSequencer struct {
	next uint64
}

func (s *NonceSequencer) Next() uint64 {
	n := s.next
	s.next++
	return n
}

func (s *NonceSequencer) Peek() uint64 {
	return s.next
}
