package mqtt

import "log"

// outbound is a serialized MQTT message held for replay after reconnection.
type outbound struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of messages published while the broker
// was unreachable. The oldest message is overwritten when full.
// Not safe for concurrent use; callers synchronize.
type ringBuffer struct {
	buf     []outbound
	head    int // next write position
	count   int
	dropped int // messages overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]outbound, capacity)}
}

func (r *ringBuffer) push(msg outbound) {
	n := len(r.buf)
	if r.count == n {
		if r.dropped == 0 {
			log.Printf("mqtt: offline buffer full (%d messages), dropping oldest", n)
		}
		r.dropped++
	} else {
		r.count++
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % n
}

// drain returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drain() []outbound {
	if r.count == 0 {
		return nil
	}

	n := len(r.buf)
	out := make([]outbound, r.count)
	start := (r.head - r.count + n) % n
	for i := range out {
		out[i] = r.buf[(start+i)%n]
	}

	r.count = 0
	r.head = 0
	r.dropped = 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
