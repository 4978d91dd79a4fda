package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/labeldash/internal/infrastructure/config"
	"github.com/nerrad567/labeldash/internal/labels"
)

// fakeWriter captures points instead of sending them.
type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriter) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func (f *fakeWriter) last(t *testing.T) *write.Point {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.points) == 0 {
		t.Fatal("no point written")
	}
	return f.points[len(f.points)-1]
}

func tagValue(p *write.Point, key string) string {
	for _, tag := range p.TagList() {
		if tag.Key == key {
			return tag.Value
		}
	}
	return ""
}

func fieldValue(p *write.Point, key string) interface{} {
	for _, field := range p.FieldList() {
		if field.Key == key {
			return field.Value
		}
	}
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	c := newClient(w, "dash-1")
	c.now = func() time.Time { return fixedNow }
	return c, w
}

func TestClient_ConnectionChanged(t *testing.T) {
	c, w := newTestClient()

	c.ConnectionChanged("abc", true)

	p := w.last(t)
	if p.Name() != MeasurementSession {
		t.Errorf("measurement = %q, want %q", p.Name(), MeasurementSession)
	}
	if tagValue(p, "identity") != "abc" || tagValue(p, "dashboard_id") != "dash-1" {
		t.Errorf("tags = %+v", p.TagList())
	}
	if fieldValue(p, "connected") != true {
		t.Errorf("connected = %v, want true", fieldValue(p, "connected"))
	}
	if !p.Time().Equal(fixedNow) {
		t.Errorf("time = %v, want %v", p.Time(), fixedNow)
	}
}

func TestClient_Failures(t *testing.T) {
	c, w := newTestClient()

	c.SubscribeFailed("status/+/alive", errors.New("refused"))
	p := w.last(t)
	if p.Name() != MeasurementSubscribe || tagValue(p, "topic") != "status/+/alive" {
		t.Errorf("subscribe point = %s %+v", p.Name(), p.TagList())
	}
	if fieldValue(p, "error") != "refused" {
		t.Errorf("error field = %v", fieldValue(p, "error"))
	}

	c.ReducerFailed("SET", errors.New("bad"))
	p = w.last(t)
	if p.Name() != MeasurementReducer || tagValue(p, "action") != "SET" {
		t.Errorf("reducer point = %s %+v", p.Name(), p.TagList())
	}
}

func TestClient_UnrecordedNotifications(t *testing.T) {
	c, w := newTestClient()

	c.SubscribeAttempted("a")
	c.MessagePublished("a")
	c.MessageReceived("a")

	if len(w.points) != 0 {
		t.Errorf("points = %d, want 0", len(w.points))
	}
}

func TestClient_RecordJob(t *testing.T) {
	c, w := newTestClient()
	submitted := fixedNow.Add(-time.Minute)

	err := c.RecordJob(context.Background(), labels.Submission{
		Job: labels.PrintJob{
			ID:    "dash-1",
			JobID: "job-1",
			Items: []labels.LabelItem{{Key: "k", Value: "v", Type: labels.LabelText}},
			Qty:   3,
		},
		Topic:       "site/print/",
		SubmittedAt: submitted,
	})
	if err != nil {
		t.Fatalf("RecordJob() error = %v", err)
	}

	p := w.last(t)
	if p.Name() != MeasurementPrintJob || tagValue(p, "topic") != "site/print/" {
		t.Errorf("point = %s %+v", p.Name(), p.TagList())
	}
	if fieldValue(p, "job_id") != "job-1" || fieldValue(p, "qty") != int64(3) || fieldValue(p, "items") != int64(1) {
		t.Errorf("fields = %+v", p.FieldList())
	}
	if !p.Time().Equal(submitted) {
		t.Errorf("time = %v, want submission time", p.Time())
	}
}

func TestClient_WritePointKeepsDashboardTag(t *testing.T) {
	c, w := newTestClient()

	c.WritePoint("printer_alive", map[string]string{"printer": "zebra-1"}, map[string]interface{}{"alive": true})

	p := w.last(t)
	if tagValue(p, "printer") != "zebra-1" || tagValue(p, "dashboard_id") != "dash-1" {
		t.Errorf("tags = %+v", p.TagList())
	}
}

func TestClient_Close(t *testing.T) {
	c, w := newTestClient()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	c.ConnectionChanged("abc", false)
	c.Flush()
	if len(w.points) != 0 || w.flushes != 1 {
		t.Error("closed client still writes")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClient_WriteErrorsCallback(t *testing.T) {
	c, _ := newTestClient()
	errs := make(chan error, 1)
	c.SetOnError(func(err error) { errs <- err })

	ch := make(chan error, 1)
	ch <- errors.New("write failed")
	close(ch)
	c.handleWriteErrors(ch)

	select {
	case err := <-errs:
		if err.Error() != "write failed" {
			t.Errorf("err = %v", err)
		}
	default:
		t.Error("callback not invoked")
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(context.Background(), config.InfluxDBConfig{Enabled: false}, "dash-1")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("dials a closed port")
	}
	cfg := config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:59999",
		Token:   "token",
		Org:     "labeldash",
		Bucket:  "telemetry",
	}

	_, err := Connect(context.Background(), cfg, "dash-1")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteOptions(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.InfluxDBConfig
		wantBatch uint
		wantFlush uint
	}{
		{"defaults", config.InfluxDBConfig{}, 100, 10000},
		{"configured", config.InfluxDBConfig{BatchSize: 20, FlushInterval: 2}, 20, 2000},
		{"negative ignored", config.InfluxDBConfig{BatchSize: -1, FlushInterval: -1}, 100, 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := writeOptions(tt.cfg)
			if opts.BatchSize() != tt.wantBatch {
				t.Errorf("BatchSize() = %d, want %d", opts.BatchSize(), tt.wantBatch)
			}
			if opts.FlushInterval() != tt.wantFlush {
				t.Errorf("FlushInterval() = %d, want %d", opts.FlushInterval(), tt.wantFlush)
			}
		})
	}
}
