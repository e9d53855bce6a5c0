package onewire

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

// Name is the protocol name.
const Name = "onewire"

// Default poll timings.
const (
	DefaultTries        = 3
	DefaultConvertDelay = 750 * time.Millisecond
	DefaultReadDelay    = 250 * time.Millisecond
)

// Options configures polling.
type Options struct {
	// Tries is the number of read requests per sensor and poll.
	Tries int
	// ConvertDelay is the wait after "C" before reading.
	ConvertDelay time.Duration
	// ReadDelay is the wait for answers after each round of reads.
	ReadDelay time.Duration
}

// tracker records what the decoders saw. It outlives connections.
type tracker struct {
	mu    sync.Mutex
	read  map[uint64]time.Time
	found map[uint64]struct{}
	now   func() time.Time
}

func (t *tracker) markRead(id uint64) {
	t.mu.Lock()
	t.read[id] = t.now()
	t.mu.Unlock()
}

func (t *tracker) markFound(id uint64) {
	t.mu.Lock()
	t.found[id] = struct{}{}
	t.mu.Unlock()
}

func (t *tracker) readSince(id uint64, since time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.read[id]
	return ok && !at.Before(since)
}

func (t *tracker) foundIDs() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]uint64, 0, len(t.found))
	for id := range t.found {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Protocol binds the gateway protocol to a bridge.
type Protocol struct {
	opts    Options
	tracker *tracker
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a 1-wire protocol, filling unset options with defaults.
func New(opts Options) *Protocol {
	if opts.Tries <= 0 {
		opts.Tries = DefaultTries
	}
	if opts.ConvertDelay <= 0 {
		opts.ConvertDelay = DefaultConvertDelay
	}
	if opts.ReadDelay <= 0 {
		opts.ReadDelay = DefaultReadDelay
	}
	return &Protocol{
		opts: opts,
		tracker: &tracker{
			read:  make(map[uint64]time.Time),
			found: make(map[uint64]struct{}),
			now:   time.Now,
		},
		sleep: sleepCtx,
	}
}

// Name returns "onewire".
func (p *Protocol) Name() string { return Name }

// Families returns the 1-wire family.
func (p *Protocol) Families() []core.Family {
	return []core.Family{core.FamilyOneWire}
}

// NewDecoder returns a decoder for a new connection.
func (p *Protocol) NewDecoder() core.Decoder {
	return &Decoder{tracker: p.tracker}
}

// InitSequence resets the bus.
func (p *Protocol) InitSequence() [][]byte {
	return [][]byte{[]byte("I")}
}

// EncodeCommand always fails; sensors are read-only.
func (p *Protocol) EncodeCommand(addr core.DeviceAddress, name string, _ map[string]any, _ time.Time) ([][]byte, error) {
	return nil, fmt.Errorf("%w: %s on %s", ErrNoCommands, name, addr)
}

// Found returns the sensors seen by bus searches so far.
func (p *Protocol) Found() []core.DeviceAddress {
	ids := p.tracker.foundIDs()
	out := make([]core.DeviceAddress, len(ids))
	for i, id := range ids {
		out[i] = core.OneWireAddress(id)
	}
	return out
}

// Poll starts a conversion, reads every target with up to Tries requests
// and waits for the answers. With discover set it also reads sensors found
// by earlier searches and starts a new search. write is called once per
// request line.
func (p *Protocol) Poll(ctx context.Context, write func(frames ...[]byte) error, targets []core.DeviceAddress, discover bool) error {
	start := p.tracker.now()

	ids := make([]uint64, 0, len(targets))
	for _, a := range targets {
		if a.Family == core.FamilyOneWire {
			ids = append(ids, a.ID)
		}
	}
	if discover {
		for _, id := range p.tracker.foundIDs() {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}

	if len(ids) > 0 {
		if err := write([]byte("C")); err != nil {
			return fmt.Errorf("starting conversion: %w", err)
		}
		if err := p.sleep(ctx, p.opts.ConvertDelay); err != nil {
			return err
		}
	}

	pending := ids
	for try := 0; try < p.opts.Tries && len(pending) > 0; try++ {
		for _, id := range pending {
			if err := write(fmt.Appendf(nil, "R%016X", id)); err != nil {
				return fmt.Errorf("reading %016X: %w", id, err)
			}
		}
		if err := p.sleep(ctx, p.opts.ReadDelay); err != nil {
			return err
		}
		pending = slices.DeleteFunc(pending, func(id uint64) bool {
			return p.tracker.readSince(id, start)
		})
	}

	if discover {
		if err := write([]byte("S")); err != nil {
			return fmt.Errorf("searching bus: %w", err)
		}
	}

	if len(pending) > 0 {
		return fmt.Errorf("%w: %d of %d sensors after %d tries", ErrNoReading, len(pending), len(ids), p.opts.Tries)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
