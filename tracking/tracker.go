// Package tracking is the experiment-tracking port of the training
// loop. The Trainer logs through the Tracker interface; tests inject
// Noop, real runs talk to a local dashboard sidecar over HTTP.
package tracking

// Tracker receives scalar metrics, rendered images and run-level
// summary values, keyed by the trainer's monotonic step counter.
type Tracker interface {
	// LogScalar records one named scalar at a step.
	LogScalar(name string, value float64, step int) error
	// LogImage records a PNG-encoded image at a step.
	LogImage(name string, png []byte, step int) error
	// SetSummary sets a run-level summary value, overwriting any
	// previous value for the key.
	SetSummary(key string, value float64) error
	// Close flushes and releases the backend.
	Close() error
}

// Noop discards everything. It stands in for a real backend in tests
// and when tracking is disabled.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) LogScalar(name string, value float64, step int) error { return nil }
func (n *Noop) LogImage(name string, png []byte, step int) error     { return nil }
func (n *Noop) SetSummary(key string, value float64) error           { return nil }
func (n *Noop) Close() error                                         { return nil }
