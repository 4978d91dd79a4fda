// Package influxdb records labeldash telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. The Client is both a
// session.Observer (connection transitions, subscribe and reducer failures)
// and a labels.Recorder (one point per submitted print job). Every point
// carries a dashboard_id tag.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Dashboard.ID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered to the
// SetOnError callback. Connection and health check errors are returned
// directly. InfluxDB is optional: Connect returns ErrDisabled when it is
// switched off in config.yaml.
package influxdb
