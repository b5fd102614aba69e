package audit

import (
	"fmt"
	"sync"
)

const DefaultQueueSize = 256

type Options struct {
	// Async hands records to a single background worker. Records of one call
	// and calls themselves keep their order.
	Async     bool
	QueueSize int
	// OnError observes sink failures. It never changes a verdict.
	OnError func(error)
	// OnDispatch observes every record handed to the sink, with the sink result.
	OnDispatch func(record Record, err error)
	// OnDrop observes records discarded because the queue was full or the
	// dispatcher was closed.
	OnDrop func(records []Record)
}

// Dispatcher delivers records to a sink, fire and forget. Dispatch never
// blocks on a full queue and never reports sink failures to the caller.
type Dispatcher struct {
	sink    Sink
	options Options

	mu     sync.RWMutex
	closed bool
	queue  chan []Record
	done   chan struct{}
}

func NewDispatcher(sink Sink, options Options) *Dispatcher {
	if sink == nil {
		sink = NopSink{}
	}
	dispatcher := &Dispatcher{sink: sink, options: options}
	if options.Async {
		size := options.QueueSize
		if size <= 0 {
			size = DefaultQueueSize
		}
		dispatcher.queue = make(chan []Record, size)
		dispatcher.done = make(chan struct{})
		go dispatcher.run()
	}
	return dispatcher
}

func (d *Dispatcher) Dispatch(records []Record) {
	if len(records) == 0 {
		return
	}
	batch := append([]Record(nil), records...)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(batch)
		return
	}
	if d.queue == nil {
		d.deliver(batch)
		return
	}
	select {
	case d.queue <- batch:
	default:
		d.drop(batch)
	}
}

// Close stops accepting records and waits until queued records are delivered.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.queue != nil {
		close(d.queue)
	}
	d.mu.Unlock()
	if d.done != nil {
		<-d.done
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for batch := range d.queue {
		d.deliver(batch)
	}
}

func (d *Dispatcher) deliver(batch []Record) {
	fields := make([]map[string]any, len(batch))
	for index, record := range batch {
		fields[index] = record.Fields()
	}
	err := d.emit(fields)
	for _, record := range batch {
		if d.options.OnDispatch != nil {
			d.options.OnDispatch(record, err)
		}
	}
	if err != nil && d.options.OnError != nil {
		d.options.OnError(err)
	}
}

func (d *Dispatcher) emit(fields []map[string]any) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("audit sink panic: %v", recovered)
		}
	}()
	return emitBatch(d.sink, fields)
}

func (d *Dispatcher) drop(batch []Record) {
	if d.options.OnDrop != nil {
		d.options.OnDrop(batch)
	}
}
