package collector

import (
	"sync"
	"time"

	"github.com/gyrocam/client/internal/payload"
)

// Stats summarises what the collector has received.
type Stats struct {
	Clients       int
	Messages      uint64
	Bytes         uint64
	DecodeErrors  uint64
	LastGyro      payload.Gyro
	LastFrameSize int
	LastMessageAt time.Time
}

type counters struct {
	mu sync.Mutex
	st Stats
}

func newCounters() *counters {
	return &counters{}
}

func (c *counters) record(msg payload.Message, wireBytes, frameBytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.Messages++
	c.st.Bytes += uint64(wireBytes)
	c.st.LastGyro = msg.Gyro
	c.st.LastFrameSize = frameBytes
	c.st.LastMessageAt = time.Now()
}

func (c *counters) decodeError() {
	c.mu.Lock()
	c.st.DecodeErrors++
	c.mu.Unlock()
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}
