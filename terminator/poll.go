package terminator

// Poll is the outcome of a non-blocking operation on a Stream.
type Poll int

const (
	// Pending means the operation could not make progress yet. The caller
	// should wait on Stream.Wake and poll again.
	Pending Poll = iota
	// Ready means the operation completed, successfully or with an error.
	Ready
)

func (p Poll) String() string {
	switch p {
	case Ready:
		return "Ready"
	default:
		return "Pending"
	}
}

// op is a single I/O call running in the background on behalf of a poller.
type op struct {
	done chan struct{}
	n    int
	err  error
}

func newOp() *op {
	return &op{
		done: make(chan struct{}),
	}
}

func (o *op) finished() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}
