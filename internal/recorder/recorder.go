// Package recorder stores board samples in a time series database.
package recorder

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the measurement name samples are written under.
const Measurement = "extio"

// Sample is one snapshot of the board caches.
type Sample struct {
	Time    time.Time
	Analog  [8]int16
	Inputs  uint16
	Outputs uint32
}

// Recorder stores samples. Record never blocks on the network.
type Recorder interface {
	Record(s Sample)
	Close() error
}

// InfluxOptions locates an InfluxDB 2 bucket.
type InfluxOptions struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// Board tags every point.
	Board string

	Logger *log.Logger
}

// InfluxRecorder writes samples through the InfluxDB non-blocking write API.
type InfluxRecorder struct {
	client influxdb2.Client
	write  api.WriteAPI
	board  string
	logger *log.Logger
}

// NewInfluxRecorder creates a recorder. No connection is made until the
// first batch is flushed; write errors are logged as they arrive.
func NewInfluxRecorder(opts InfluxOptions) *InfluxRecorder {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	client := influxdb2.NewClientWithOptions(opts.URL, opts.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(50).
			SetFlushInterval(1000))

	r := &InfluxRecorder{
		client: client,
		write:  client.WriteAPI(opts.Org, opts.Bucket),
		board:  opts.Board,
		logger: logger,
	}
	go r.drainErrors(r.write.Errors())
	return r
}

func (r *InfluxRecorder) drainErrors(errs <-chan error) {
	for err := range errs {
		r.logger.Error("write failed", "err", err)
	}
}

// Record queues a sample for writing.
func (r *InfluxRecorder) Record(s Sample) {
	r.write.WritePoint(NewPoint(s, r.board))
}

// Close flushes pending points and releases the client.
func (r *InfluxRecorder) Close() error {
	r.write.Flush()
	r.client.Close()
	return nil
}

// NewPoint converts a sample into a point with fields ch0..ch7, inputs and
// outputs.
func NewPoint(s Sample, board string) *write.Point {
	fields := make(map[string]interface{}, len(s.Analog)+2)
	for ch, v := range s.Analog {
		fields[fmt.Sprintf("ch%d", ch)] = int64(v)
	}
	fields["inputs"] = int64(s.Inputs)
	fields["outputs"] = int64(s.Outputs)

	var tags map[string]string
	if board != "" {
		tags = map[string]string{"board": board}
	}
	return influxdb2.NewPoint(Measurement, tags, fields, s.Time)
}

// FakeRecorder records samples for test assertions.
type FakeRecorder struct {
	Samples []Sample
	Closed  bool
}

// Record appends the sample.
func (f *FakeRecorder) Record(s Sample) {
	f.Samples = append(f.Samples, s)
}

// Close marks the recorder as closed.
func (f *FakeRecorder) Close() error {
	f.Closed = true
	return nil
}
