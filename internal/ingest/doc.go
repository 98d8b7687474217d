// Package ingest feeds channel values reported by devices into the
// automation store.
//
// Values arrive from three places: the MQTT value topics
// (graylogic/hub/value/{device}/{channel}), the HTTP reception endpoint and
// open channel sessions. All of them go through Pipeline.OnChannelValue,
// which forwards the value to the store and, when the store accepts it,
// records it in the local value history, writes a telemetry point and
// broadcasts a "channel.value" event.
//
// # Usage
//
//	p := ingest.NewPipeline(store,
//	    ingest.WithHistory(historyRepo),
//	    ingest.WithTelemetry(influxClient),
//	    ingest.WithHub(hub),
//	    ingest.WithRecorder(m),
//	)
//	sub := ingest.NewSubscriber(mqttClient, p, 1)
//	if err := sub.Start(); err != nil { ... }
package ingest
