package flow

import (
	"math/rand/v2"

	"github.com/c360/semflow/errors"
)

// maxIDAttempts bounds the random draws before an id request fails
const maxIDAttempts = 10000

// IDSource yields candidate process ids. Candidates may collide with ids in
// use; the sheet retries.
type IDSource interface {
	Next() uint64
}

// IDSourceFunc adapts a function to IDSource
type IDSourceFunc func() uint64

// Next implements IDSource
func (f IDSourceFunc) Next() uint64 { return f() }

type randomIDs struct {
	rng   *rand.Rand
	space uint64
}

// NewRandomIDSource returns a deterministic source seeded with seed. Ids are
// drawn from [1, space]; a zero space means the full 64-bit range.
func NewRandomIDSource(seed uint64, space uint64) IDSource {
	return &randomIDs{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		space: space,
	}
}

func (r *randomIDs) Next() uint64 {
	if r.space == 0 {
		for {
			if id := r.rng.Uint64(); id != 0 {
				return id
			}
		}
	}
	return 1 + r.rng.Uint64N(r.space)
}

// GenerateProcessID returns preferred when it is set and unused; otherwise
// it draws from the sheet's id source until an unused id comes up, giving up
// with ErrIDExhausted after 10000 draws.
func (s *Sheet) GenerateProcessID(preferred *uint64) (uint64, error) {
	if preferred != nil && *preferred != 0 {
		if _, taken := s.processes[*preferred]; !taken {
			return *preferred, nil
		}
	}
	for range maxIDAttempts {
		id := s.ids.Next()
		if _, taken := s.processes[id]; !taken && id != 0 {
			return id, nil
		}
	}
	return 0, errors.WrapInvalid(errors.Detail(errors.ErrIDExhausted, "%d draws all collided", maxIDAttempts),
		"Sheet", "GenerateProcessID", "id draw")
}
