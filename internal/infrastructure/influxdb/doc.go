// Package influxdb records hub telemetry in InfluxDB v2.
//
// Every channel value accepted by the automation store is written as a
// point in the "channel_values" measurement, tagged with device, channel and
// source; every fired automation as a point in "automation_fired". Writes
// use the non-blocking, batched write API, so ingestion never waits on the
// network. Asynchronous write failures are reported through SetOnError.
//
// InfluxDB is optional: Connect returns ErrDisabled when influxdb.enabled is
// false and the hub runs without telemetry.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // continue without telemetry
//	}
//	client.WriteChannelValue(rule.NewChannel("outlet", "power"), 120, "mqtt", time.Now())
package influxdb
