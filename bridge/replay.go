package bridge

import "sort"

// ReplayGuard remembers nonces of redeemed swap records. One guard serves
// exactly one counterpart instance, nonces of different sources would collide.
type ReplayGuard struct {
	consumed map[uint64]struct{}
}

func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{consumed: make(map[uint64]struct{})}
}

// Consume marks nonce as used, false if it already was.
func (g *ReplayGuard) Consume(nonce uint64) bool {
	if _, ok := g.consumed[nonce]; ok {
		return false
	}
	g.consumed[nonce] = struct{}{}
	return true
}

func (g *ReplayGuard) Consumed(nonce uint64) bool {
	_, ok := g.consumed[nonce]
	return ok
}

// Nonces returns consumed nonces in ascending order.
func (g *ReplayGuard) Nonces() []uint64 {
	nonces := make([]uint64, 0, len(g.consumed))
	for n := range g.consumed {
		nonces = append(nonces, n)
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
	return nonces
}
