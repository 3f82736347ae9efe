// Package store keeps export and print job status.
package store

import (
    "context"
    "sync"
    "time"
)

// Status is the externally visible state of one job.
type Status struct {
    Kind     string                 `json:"kind"` // export|print
    Status   string                 `json:"status"`
    Progress int                    `json:"progress"`
    Message  string                 `json:"message"`
    Start    *time.Time             `json:"start_time,omitempty"`
    End      *time.Time             `json:"end_time,omitempty"`
    Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Statuses is implemented by the Redis and in-memory stores.
type Statuses interface {
    Set(ctx context.Context, jobID string, st Status) error
    Get(ctx context.Context, jobID string) (Status, bool, error)
    Close() error
}

type memEntry struct {
    st      Status
    expires time.Time
}

// MemoryStatus is used when no Redis URL is configured.
type MemoryStatus struct {
    mu   sync.RWMutex
    ttl  time.Duration
    jobs map[string]memEntry
    now  func() time.Time
}

func NewMemoryStatus(ttl time.Duration) *MemoryStatus {
    return &MemoryStatus{ttl: ttl, jobs: map[string]memEntry{}, now: time.Now}
}

func (m *MemoryStatus) Set(ctx context.Context, jobID string, st Status) error {
    if st.Metadata != nil {
        cp := make(map[string]interface{}, len(st.Metadata))
        for k, v := range st.Metadata { cp[k] = v }
        st.Metadata = cp
    }
    e := memEntry{st: st}
    if m.ttl > 0 { e.expires = m.now().Add(m.ttl) }
    m.mu.Lock()
    m.jobs[jobID] = e
    m.mu.Unlock()
    return nil
}

func (m *MemoryStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
    m.mu.RLock()
    e, ok := m.jobs[jobID]
    m.mu.RUnlock()
    if !ok { return Status{}, false, nil }
    if !e.expires.IsZero() && m.now().After(e.expires) {
        m.mu.Lock()
        delete(m.jobs, jobID)
        m.mu.Unlock()
        return Status{}, false, nil
    }
    return e.st, true, nil
}

func (m *MemoryStatus) Close() error { return nil }
