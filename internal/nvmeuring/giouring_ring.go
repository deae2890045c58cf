//go:build giouring

// Package nvmeuring: giouring-backed Ring, built when the "giouring" tag is
// set. Uses github.com/pawelgaczynski/giouring, a liburing-equivalent
// binding, instead of the hand-rolled syscalls in minimal.go.
package nvmeuring

import (
	"fmt"

	"github.com/pawelgaczynski/giouring"
)

type giouringRing struct {
	ring *giouring.Ring
}

// NewGiouringRing creates a Ring backed by giouring, with SQE128/CQE32
// support enabled (required for URING_CMD's larger command area).
func NewGiouringRing(config Config) (Ring, error) {
	ring, err := giouring.CreateRing(config.Entries, giouring.WithSQE128(), giouring.WithCQE32())
	if err != nil {
		return nil, fmt.Errorf("nvmeuring: giouring.CreateRing: %w", err)
	}
	return &giouringRing{ring: ring}, nil
}

func (r *giouringRing) Close() error {
	r.ring.QueueExit()
	return nil
}

func (r *giouringRing) PrepareCmd(nsFd int32, cmd *PassthruSQE, userData uint64) error {
	sqe := r.ring.GetSQE()
	if sqe == nil {
		return ErrRingFull
	}
	sqe.PrepRW(ioringOpUringCmd, nsFd, cmd.BufAddr, cmd.BufLen, 0)
	sqe.SetUserData(userData)
	sqe.OpcodeFlags = cmd.Opcode
	return nil
}

func (r *giouringRing) FlushSubmissions() (uint32, error) {
	n, err := r.ring.Submit()
	if err != nil {
		return 0, fmt.Errorf("nvmeuring: giouring submit: %w", err)
	}
	return uint32(n), nil
}

func (r *giouringRing) ReapCompletions(max int) ([]Result, error) {
	cqes := make([]*giouring.CompletionQueueEvent, max)
	n := r.ring.PeekBatchCQE(cqes)
	results := make([]Result, 0, n)
	for i := uint32(0); i < n; i++ {
		cqe := cqes[i]
		res := &minimalResult{userData: cqe.UserData, value: cqe.Res}
		if cqe.Res < 0 {
			res.err = fmt.Errorf("nvmeuring: completion error %d", cqe.Res)
		}
		results = append(results, res)
	}
	r.ring.CQAdvance(n)
	return results, nil
}
