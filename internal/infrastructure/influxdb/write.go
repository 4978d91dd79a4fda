package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/labeldash/internal/labels"
	"github.com/nerrad567/labeldash/internal/session"
)

// Measurement names.
const (
	MeasurementSession   = "session_status"
	MeasurementSubscribe = "subscribe_failures"
	MeasurementReducer   = "reducer_failures"
	MeasurementPrintJob  = "print_jobs"
)

var (
	_ session.Observer = (*Client)(nil)
	_ labels.Recorder  = (*Client)(nil)
)

// ConnectionChanged writes one session_status point per transition.
func (c *Client) ConnectionChanged(identity string, connected bool) {
	c.writePoint(MeasurementSession,
		map[string]string{"identity": identity},
		map[string]interface{}{"connected": connected},
		c.now(),
	)
}

// SubscribeAttempted is not recorded; attempts are counted by the metrics package.
func (c *Client) SubscribeAttempted(string) {}

// SubscribeFailed writes one point per failed acknowledgment.
func (c *Client) SubscribeFailed(topic string, err error) {
	c.writePoint(MeasurementSubscribe,
		map[string]string{"topic": topic},
		map[string]interface{}{"error": err.Error()},
		c.now(),
	)
}

// MessagePublished is not recorded; message volume belongs in Prometheus.
func (c *Client) MessagePublished(string) {}

// MessageReceived is not recorded.
func (c *Client) MessageReceived(string) {}

// ReducerFailed writes one point per rejected action.
func (c *Client) ReducerFailed(actionType string, err error) {
	c.writePoint(MeasurementReducer,
		map[string]string{"action": actionType},
		map[string]interface{}{"error": err.Error()},
		c.now(),
	)
}

// RecordJob writes a print_jobs point stamped with the submission time.
// Writes are asynchronous, so the returned error is always nil.
func (c *Client) RecordJob(_ context.Context, sub labels.Submission) error {
	c.writePoint(MeasurementPrintJob,
		map[string]string{"topic": sub.Topic},
		map[string]interface{}{
			"job_id": sub.Job.JobID,
			"qty":    sub.Job.Qty,
			"items":  len(sub.Job.Items),
		},
		sub.SubmittedAt,
	)
	return nil
}

// WritePoint writes a custom point with full control over tags and fields.
// The dashboard_id tag is always added.
//
// Example:
//
//	client.WritePoint("printer_alive",
//	    map[string]string{"printer": "zebra-1"},
//	    map[string]interface{}{"alive": true})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.writePoint(measurement, tags, fields, c.now())
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	all := make(map[string]string, len(tags)+len(c.tags))
	for k, v := range c.tags {
		all[k] = v
	}
	for k, v := range tags {
		all[k] = v
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, all, fields, ts))
}
