package core

import "time"

// QueuedMessage is one entry of a client's outbound queue.
type QueuedMessage struct {
	Message Message
	Reply   *PendingReply
	// Timeout bounds the pending reply once the message is actually sent.
	// Zero means no deadline.
	Timeout time.Duration
}

// queue is an ordered outbound buffer, FIFO by admission. It is not safe
// for concurrent use; the owning client serializes access.
type queue struct {
	entries []QueuedMessage
}

func (q *queue) append(qm QueuedMessage) {
	q.entries = append(q.entries, qm)
}

func (q *queue) len() int {
	return len(q.entries)
}

// extract partitions the queue in a single pass: entries matching pred are
// returned, the rest stay queued. Relative order is preserved on both sides.
func (q *queue) extract(pred func(QueuedMessage) bool) []QueuedMessage {
	var matched []QueuedMessage
	kept := q.entries[:0]
	for _, qm := range q.entries {
		if pred(qm) {
			matched = append(matched, qm)
		} else {
			kept = append(kept, qm)
		}
	}
	// Zero the tail so extracted entries don't pin replies.
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = QueuedMessage{}
	}
	q.entries = kept
	return matched
}

// drain removes and returns everything, in order.
func (q *queue) drain() []QueuedMessage {
	out := q.entries
	q.entries = nil
	return out
}

// snapshot returns a copy of the current entries.
func (q *queue) snapshot() []QueuedMessage {
	out := make([]QueuedMessage, len(q.entries))
	copy(out, q.entries)
	return out
}
