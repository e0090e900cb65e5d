package mcpui

import (
	"container/heap"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrRequestTimeout is the cause of a ToolCallError when the host did not answer within the
// request timeout.
var ErrRequestTimeout = errors.New("request timeout")

// correlator matches responses to the requests this side sent. Every pending request has a deadline;
// a single timer armed for the earliest deadline expires them, so a request is released even if the
// transport never delivers anything.
type correlator struct {
	timeout time.Duration
	now     func() time.Time

	mu        sync.Mutex
	lastID    int64
	pending   map[int64]*pendingRequest
	deadlines deadlineQueue
	timer     *time.Timer

	onExpire func(id int64)
}

type pendingRequest struct {
	id        int64
	createdAt time.Time
	deadline  time.Time
	resolve   func(json.RawMessage)
	reject    func(error)
}

// deadlineQueue is a min-heap of pending requests ordered by deadline. Settled requests stay in the
// heap until they reach the top and are skipped there.
type deadlineQueue []*pendingRequest

func newCorrelator(timeout time.Duration) *correlator {
	return &correlator{
		timeout: timeout,
		now:     time.Now,
		pending: make(map[int64]*pendingRequest),
	}
}

// allocateID returns the next request id. Ids start at 1 and are never reused.
func (c *correlator) allocateID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastID++
	return c.lastID
}

// register stores a pending request and schedules its expiry.
func (c *correlator) register(id int64, resolve func(json.RawMessage), reject func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	req := &pendingRequest{
		id:        id,
		createdAt: now,
		deadline:  now.Add(c.timeout),
		resolve:   resolve,
		reject:    reject,
	}
	c.pending[id] = req
	heap.Push(&c.deadlines, req)

	if c.deadlines[0] == req {
		c.armLocked(now)
	}
}

// settle completes the pending request matching the response. It reports false when no request with
// that id is pending, which covers late and duplicate responses.
func (c *correlator) settle(id int64, resp Envelope) bool {
	req, ok := c.take(id)
	if !ok {
		return false
	}

	if resp.Error != nil {
		req.reject(resp.Error)
		return true
	}
	req.resolve(resp.Result)
	return true
}

// fail rejects the pending request with err. It reports false when the id is not pending.
func (c *correlator) fail(id int64, err error) bool {
	req, ok := c.take(id)
	if !ok {
		return false
	}
	req.reject(err)
	return true
}

func (c *correlator) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending)
}

func (c *correlator) take(id int64) (*pendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.pending[id]
	if !ok {
		return nil, false
	}
	delete(c.pending, id)
	return req, true
}

func (c *correlator) expire() {
	c.mu.Lock()
	now := c.now()

	var expired []*pendingRequest
	for len(c.deadlines) > 0 {
		head := c.deadlines[0]
		if c.pending[head.id] != head {
			heap.Pop(&c.deadlines)
			continue
		}
		if head.deadline.After(now) {
			break
		}
		heap.Pop(&c.deadlines)
		delete(c.pending, head.id)
		expired = append(expired, head)
	}
	c.armLocked(now)
	c.mu.Unlock()

	for _, req := range expired {
		if c.onExpire != nil {
			c.onExpire(req.id)
		}
		req.reject(ErrRequestTimeout)
	}
}

// armLocked points the timer at the earliest deadline still in the queue.
func (c *correlator) armLocked(now time.Time) {
	if len(c.deadlines) == 0 {
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		return
	}

	wait := c.deadlines[0].deadline.Sub(now)
	if wait < 0 {
		wait = 0
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(wait, c.expire)
}

func (q deadlineQueue) Len() int { return len(q) }

func (q deadlineQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].id < q[j].id
	}
	return q[i].deadline.Before(q[j].deadline)
}

func (q deadlineQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *deadlineQueue) Push(x any) { *q = append(*q, x.(*pendingRequest)) }

func (q *deadlineQueue) Pop() any {
	old := *q
	n := len(old)
	req := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return req
}
