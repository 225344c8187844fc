// Package generate runs text generation sessions and streams their
// progress as ordered events.
package generate

import "sync"

// EventKind identifies a point in a session's lifecycle.
type EventKind int

const (
	EventStartedLoadingModel EventKind = iota
	EventFinishedLoadingModel
	EventStartedGeneratingOutput
	EventOutputToken
	EventCompleted
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStartedLoadingModel:
		return "started_loading_model"
	case EventFinishedLoadingModel:
		return "finished_loading_model"
	case EventStartedGeneratingOutput:
		return "started_generating_output"
	case EventOutputToken:
		return "output_token"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}

// Event is one step of session progress. Token is set for output_token
// events, Err for failed events.
type Event struct {
	Kind  EventKind
	Token string
	Err   error
}

// eventChannel is an unbounded FIFO between the session goroutine and one
// consumer. Publishing never blocks; a delivery goroutine feeds the
// outbound channel in publish order and closes it once the queue drains
// after close.
type eventChannel struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	out    chan Event
}

func newEventChannel() *eventChannel {
	ec := &eventChannel{out: make(chan Event)}
	ec.cond = sync.NewCond(&ec.mu)
	go ec.deliver()
	return ec
}

func (ec *eventChannel) publish(ev Event) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.closed {
		return
	}
	ec.queue = append(ec.queue, ev)
	ec.cond.Signal()
}

func (ec *eventChannel) close() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.closed {
		return
	}
	ec.closed = true
	ec.cond.Signal()
}

func (ec *eventChannel) deliver() {
	for {
		ec.mu.Lock()
		for len(ec.queue) == 0 && !ec.closed {
			ec.cond.Wait()
		}
		if len(ec.queue) == 0 {
			ec.mu.Unlock()
			close(ec.out)
			return
		}
		ev := ec.queue[0]
		ec.queue = ec.queue[1:]
		ec.mu.Unlock()
		ec.out <- ev
	}
}
