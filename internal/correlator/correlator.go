// Package correlator implements the pending-response correlator: a mapping
// from an outstanding requestId to a waiter with a deadline and optional type
// filter, used by agent.request/service.task.request style calls that must
// await a reply on the same channel they sent on.
package correlator

import (
	"context"
	"sync"
	"time"

	"github.com/agentmesh/orchestrator/internal/common/apperr"
	"github.com/agentmesh/orchestrator/pkg/wire"
)

type waiter struct {
	replyCh      chan *wire.Message
	typeFilter   string
	anyIDWithType bool
	once         sync.Once
}

func (w *waiter) resolve(msg *wire.Message) {
	w.once.Do(func() { w.replyCh <- msg })
}

// Options configures a single await call.
type Options struct {
	Timeout    time.Duration
	TypeFilter string
	// AnyIDWithType resolves on the next message of TypeFilter's type
	// regardless of requestId — for streaming flows where the reply id is
	// server-minted. TypeFilter must be set when this is true.
	AnyIDWithType bool
}

// Correlator owns the pending-waiter table for one connection (or one
// logical channel — callers typically keep one Correlator per connectionId).
type Correlator struct {
	mu               sync.Mutex
	byRequestID      map[string]*waiter
	byTypeAnyID      map[string][]*waiter // secondary index, consulted only when no requestId match
}

// New returns an empty Correlator.
func New() *Correlator {
	return &Correlator{
		byRequestID: make(map[string]*waiter),
		byTypeAnyID: make(map[string][]*waiter),
	}
}

// Await registers a waiter for msg.ID and blocks until a matching reply
// arrives, the timeout elapses, or ctx is cancelled (channel close should be
// modeled by the caller cancelling ctx and then calling CancelAll).
func (c *Correlator) Await(ctx context.Context, msgID string, opts Options) (*wire.Message, error) {
	w := &waiter{
		replyCh:       make(chan *wire.Message, 1),
		typeFilter:    opts.TypeFilter,
		anyIDWithType: opts.AnyIDWithType,
	}

	c.mu.Lock()
	if opts.AnyIDWithType {
		c.byTypeAnyID[opts.TypeFilter] = append(c.byTypeAnyID[opts.TypeFilter], w)
	} else {
		c.byRequestID[msgID] = w
	}
	c.mu.Unlock()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	defer c.remove(msgID, w, opts)

	select {
	case reply := <-w.replyCh:
		if reply.IsError() {
			return reply, apperr.RoutingFailure("peer replied with error: "+reply.ErrorString(), nil)
		}
		return reply, nil
	case <-timer.C:
		return nil, apperr.Timeout("pending response for " + msgID + " timed out after " + timeout.String())
	case <-ctx.Done():
		return nil, apperr.RoutingFailure("connection closed while awaiting "+msgID, ctx.Err())
	}
}

func (c *Correlator) remove(msgID string, w *waiter, opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if opts.AnyIDWithType {
		list := c.byTypeAnyID[opts.TypeFilter]
		for i, cand := range list {
			if cand == w {
				c.byTypeAnyID[opts.TypeFilter] = append(list[:i], list[i+1:]...)
				break
			}
		}
	} else {
		if cur, ok := c.byRequestID[msgID]; ok && cur == w {
			delete(c.byRequestID, msgID)
		}
	}
}

// Resolve delivers an inbound message to whichever waiter it satisfies.
// The common path — requestId keyed — is O(1); the anyIdWithType index is
// only consulted when no requestId waiter matches, per spec.
func (c *Correlator) Resolve(msg *wire.Message) bool {
	c.mu.Lock()
	if msg.RequestID != "" {
		if w, ok := c.byRequestID[msg.RequestID]; ok {
			if w.typeFilter == "" || w.typeFilter == msg.Type || msg.IsError() {
				delete(c.byRequestID, msg.RequestID)
				c.mu.Unlock()
				w.resolve(msg)
				return true
			}
		}
	}

	if list, ok := c.byTypeAnyID[msg.Type]; ok && len(list) > 0 {
		w := list[0]
		c.byTypeAnyID[msg.Type] = list[1:]
		c.mu.Unlock()
		w.resolve(msg)
		return true
	}

	c.mu.Unlock()
	return false
}

// CancelAll rejects every outstanding waiter with a connection-closed style
// error, e.g. on channel close or shutdown.
func (c *Correlator) CancelAll(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	errMsg := &wire.Message{Type: wire.TypeError}
	content, _ := wireErrorContent(reason)
	errMsg.Content = content

	for id, w := range c.byRequestID {
		w.resolve(errMsg)
		delete(c.byRequestID, id)
	}
	for t, list := range c.byTypeAnyID {
		for _, w := range list {
			w.resolve(errMsg)
		}
		delete(c.byTypeAnyID, t)
	}
}

func wireErrorContent(reason string) ([]byte, error) {
	m, err := wire.New("", wire.TypeError, map[string]string{"error": reason})
	if err != nil {
		return nil, err
	}
	return m.Content, nil
}
