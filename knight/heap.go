package knight

import (
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

const (
	epochCount     = 3
	maxFreeBuffers = 64
)

// EpochDomain defers reuse of retired value buffers until no pinned
// participant can still be reading them. A buffer retired while the global
// epoch is e becomes reusable once the global epoch reaches e+2.
type EpochDomain struct {
	mu           sync.Mutex
	global       atomic.Uint64
	participants map[*Participant]struct{}
	limbo        [epochCount][][]Value
	free         [][]Value

	retired   atomic.Uint64
	reclaimed atomic.Uint64
	log       commonlog.Logger
}

// Participant is one reader of shared values, typically one VM.
type Participant struct {
	domain *EpochDomain
	local  uint64
	pinned int
}

type EpochStats struct {
	Epoch     uint64
	Retired   uint64
	Reclaimed uint64
	Pending   int
	Free      int
}

// DefaultEpochDomain is shared by every VM that is not given its own domain.
var DefaultEpochDomain = sync.OnceValue(NewEpochDomain)

func NewEpochDomain() *EpochDomain {
	return &EpochDomain{
		participants: make(map[*Participant]struct{}),
		log:          commonlog.GetLogger("knight.heap"),
	}
}

func (d *EpochDomain) Register() *Participant {
	p := &Participant{domain: d}
	d.mu.Lock()
	d.participants[p] = struct{}{}
	d.mu.Unlock()
	return p
}

func (d *EpochDomain) Unregister(p *Participant) {
	d.mu.Lock()
	delete(d.participants, p)
	d.mu.Unlock()
}

// Pin announces that p is about to read shared buffers. Pins nest.
func (p *Participant) Pin() {
	d := p.domain
	d.mu.Lock()
	if p.pinned == 0 {
		p.local = d.global.Load()
	}
	p.pinned++
	d.mu.Unlock()
}

func (p *Participant) Unpin() {
	d := p.domain
	d.mu.Lock()
	if p.pinned > 0 {
		p.pinned--
	}
	d.mu.Unlock()
}

func (p *Participant) Pinned() bool {
	p.domain.mu.Lock()
	defer p.domain.mu.Unlock()
	return p.pinned > 0
}

// Retire hands a buffer back to the domain. Its contents are cleared so the
// values it referenced become collectable right away; the buffer itself is
// only reused after two epoch advances.
func (d *EpochDomain) Retire(buf []Value) {
	if cap(buf) == 0 {
		return
	}
	clear(buf[:cap(buf)])
	d.mu.Lock()
	e := d.global.Load() % epochCount
	d.limbo[e] = append(d.limbo[e], buf[:0])
	d.mu.Unlock()
	d.retired.Add(1)
}

// TryAdvance moves the global epoch forward if every pinned participant has
// observed the current one, then reclaims the bucket that became safe.
func (d *EpochDomain) TryAdvance() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	g := d.global.Load()
	for p := range d.participants {
		if p.pinned > 0 && p.local != g {
			return false
		}
	}
	next := g + 1
	d.global.Store(next)

	safe := (next + 1) % epochCount
	n := len(d.limbo[safe])
	if n > 0 {
		d.free = append(d.free, d.limbo[safe]...)
		if len(d.free) > maxFreeBuffers {
			clear(d.free[maxFreeBuffers:])
			d.free = d.free[:maxFreeBuffers]
		}
		d.limbo[safe] = nil
		d.reclaimed.Add(uint64(n))
		d.log.Debugf("epoch %d: reclaimed %d buffers", next, n)
	}
	return true
}

// Acquire returns an empty buffer with at least the given capacity, reusing
// a reclaimed one when possible.
func (d *EpochDomain) Acquire(capacity int) []Value {
	d.mu.Lock()
	for i := len(d.free) - 1; i >= 0; i-- {
		if cap(d.free[i]) >= capacity {
			buf := d.free[i]
			d.free = append(d.free[:i], d.free[i+1:]...)
			d.mu.Unlock()
			return buf[:0]
		}
	}
	d.mu.Unlock()
	return make([]Value, 0, capacity)
}

func (d *EpochDomain) Stats() EpochStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	pending := 0
	for _, bucket := range d.limbo {
		pending += len(bucket)
	}
	return EpochStats{
		Epoch:     d.global.Load(),
		Retired:   d.retired.Load(),
		Reclaimed: d.reclaimed.Load(),
		Pending:   pending,
		Free:      len(d.free),
	}
}
