package ledger

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
)

const lockStripes = 256

// accountLocks serialises transactions touching the same account. Writable
// accounts take the stripe exclusively, read-only accounts share it.
type accountLocks struct {
	stripes [lockStripes]sync.RWMutex
}

func stripeOf(addr solana.PublicKey) int {
	return int(binary.LittleEndian.Uint32(addr[:4]) % lockStripes)
}

// acquire locks every stripe covering keys in ascending order and returns the
// matching release function.
func (l *accountLocks) acquire(keys map[solana.PublicKey]bool) func() {
	exclusive := make(map[int]bool, len(keys))
	for addr, writable := range keys {
		idx := stripeOf(addr)
		exclusive[idx] = exclusive[idx] || writable
	}
	order := make([]int, 0, len(exclusive))
	for idx := range exclusive {
		order = append(order, idx)
	}
	sort.Ints(order)
	for _, idx := range order {
		if exclusive[idx] {
			l.stripes[idx].Lock()
		} else {
			l.stripes[idx].RLock()
		}
	}
	return func() {
		for i := len(order) - 1; i >= 0; i-- {
			idx := order[i]
			if exclusive[idx] {
				l.stripes[idx].Unlock()
			} else {
				l.stripes[idx].RUnlock()
			}
		}
	}
}
