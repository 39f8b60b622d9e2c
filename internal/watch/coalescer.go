package watch

import "sync"

// coalescer serializes runs of one binding. Kicks arriving while a run is
// in progress collapse into a single pending run.
type coalescer struct {
	run func()

	mu      sync.Mutex
	running bool
	pending bool
	held    bool
	stopped bool
	idle    *sync.Cond
}

func newCoalescer(run func()) *coalescer {
	c := &coalescer{run: run}
	c.idle = sync.NewCond(&c.mu)
	return c
}

// Kick requests a run without blocking. When a run is in progress the
// request is folded into the pending flag.
func (c *coalescer) Kick() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.running || c.held {
		c.pending = true
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.drain()
}

func (c *coalescer) drain() {
	for {
		c.run()

		c.mu.Lock()
		if c.pending && !c.stopped {
			c.pending = false
			c.mu.Unlock()
			continue
		}
		c.pending = false
		c.running = false
		c.idle.Broadcast()
		c.mu.Unlock()
		return
	}
}

// Hold defers kicks until Release; they collapse into one pending run.
func (c *coalescer) Hold() {
	c.mu.Lock()
	c.held = true
	c.mu.Unlock()
}

// Release ends a hold and starts the pending run, if any.
func (c *coalescer) Release() {
	c.mu.Lock()
	if !c.held {
		c.mu.Unlock()
		return
	}
	c.held = false
	if !c.pending || c.running || c.stopped {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.running = true
	c.mu.Unlock()

	go c.drain()
}

// Stop drops pending work, rejects future kicks and waits for an in-flight
// run to finish.
func (c *coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.pending = false
	for c.running {
		c.idle.Wait()
	}
}
