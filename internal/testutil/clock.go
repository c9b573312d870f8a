package testutil

import (
	"fmt"
	"sync"
	"time"
)

// Epoch is the instant every test environment starts at.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is a manually driven cms.Clock. When step is non-zero every
// Now call moves the clock forward by step after reading it.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStubClock starts a StubClock at t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock starts a StubClock at Epoch.
func FixedClock() *StubClock { return NewStubClock(Epoch) }

// TickingClock starts a StubClock at Epoch that advances by step per read.
func TickingClock(step time.Duration) *StubClock {
	return &StubClock{now: Epoch, step: step}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set jumps the clock to t.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// StubIDGenerator hands out "op-0001", "op-0002" and so on. The padding keeps
// lexical order equal to issue order, which the journal's tie-break relies on.
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

func NewStubIDGenerator() *StubIDGenerator { return &StubIDGenerator{} }

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("op-%04d", g.next)
}

// Issued reports how many IDs have been handed out.
func (g *StubIDGenerator) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next
}
