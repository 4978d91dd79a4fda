// Package config loads the labeldash YAML configuration.
//
// Load reads a file, applies LABELDASH_* environment overrides on top and
// validates the result. LoadDefault does the same without a file, for
// running against a local broker with no setup.
//
// Broker and InfluxDB credentials are best supplied as
// LABELDASH_MQTT_PASSWORD and LABELDASH_INFLUXDB_TOKEN rather than written to
// the file. DashboardDocument is the subset handed to the browser; it carries
// no credentials.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	topic := mqtt.JoinTopic(cfg.MQTT.Prefix, mqtt.Topics{}.DashboardStatus(cfg.Dashboard.ID))
package config
