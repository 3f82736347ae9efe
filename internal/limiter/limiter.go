// Package limiter hands out keyed in-process slots.
package limiter

import (
    "strings"
    "sync"
)

// Slots bounds concurrent work per key. A key's slots are created on first
// use and dropped again when the last holder releases.
type Slots struct {
    maxInflight int
    mu          sync.Mutex
    sem         map[string]chan struct{}
}

type Options struct {
    MaxInflight int
}

func New(opts Options) *Slots {
    if opts.MaxInflight <= 0 { opts.MaxInflight = 1 }
    return &Slots{maxInflight: opts.MaxInflight, sem: map[string]chan struct{}{}}
}

func (s *Slots) key(k string) string { return strings.ToLower(strings.TrimSpace(k)) }

// Allow tries to reserve a slot for key without blocking.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (s *Slots) Allow(key string) (func(), bool) {
    k := s.key(key)
    s.mu.Lock()
    defer s.mu.Unlock()
    ch, ok := s.sem[k]
    if !ok {
        ch = make(chan struct{}, s.maxInflight)
        s.sem[k] = ch
    }
    select {
    case ch <- struct{}{}:
        var once sync.Once
        return func() { once.Do(func() { s.release(k, ch) }) }, true
    default:
        return func() {}, false
    }
}

func (s *Slots) release(k string, ch chan struct{}) {
    s.mu.Lock()
    defer s.mu.Unlock()
    <-ch
    if len(ch) == 0 && s.sem[k] == ch { delete(s.sem, k) }
}

// Inflight returns the number of held slots for key.
func (s *Slots) Inflight(key string) int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.sem[s.key(key)])
}
