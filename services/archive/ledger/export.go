// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import (
	"errors"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/deeptimelabs/tesseract/pkg/logging"
)

// StatEvent is one counted increment, emitted after the transaction that
// performed it commits.
type StatEvent struct {
	PaperID   string `json:"paper_id"`
	VersionID string `json:"version_id"`
	Kind      Kind   `json:"kind"`
	Day       string `json:"day"`
	Count     int64  `json:"count"`
}

// Exporter receives counted increments for external aggregation.
// Implementations must not block; Record forwards events on its hot path
// and relies on the exporter to buffer.
type Exporter interface {
	Export(event StatEvent)
	Close()
}

// NopExporter discards events.
type NopExporter struct{}

func (NopExporter) Export(StatEvent) {}
func (NopExporter) Close()           {}

// statsMeasurement is the InfluxDB measurement stat points land in.
const statsMeasurement = "paper_stats"

// InfluxExporter forwards counted increments to InfluxDB through the
// client's asynchronous write API. The client batches and retries;
// write failures are logged off the error channel and never reach the
// record call.
type InfluxExporter struct {
	client influxdb2.Client
	write  api.WriteAPI
	log    *logging.Logger
}

// NewInfluxExporter connects to serverURL with token and writes stat
// points into org's bucket.
func NewInfluxExporter(serverURL, token, org, bucket string, log *logging.Logger) (*InfluxExporter, error) {
	if serverURL == "" {
		return nil, errors.New("influx server url must not be empty")
	}
	if bucket == "" {
		return nil, errors.New("influx bucket must not be empty")
	}
	if log == nil {
		log = logging.Default()
	}
	client := influxdb2.NewClient(serverURL, token)
	e := &InfluxExporter{
		client: client,
		write:  client.WriteAPI(org, bucket),
		log:    log,
	}
	go e.drainErrors()
	return e, nil
}

func (e *InfluxExporter) drainErrors() {
	for err := range e.write.Errors() {
		e.log.Warn("stat export failed", "error", err)
	}
}

// Export queues one point; it does not wait for the network.
func (e *InfluxExporter) Export(event StatEvent) {
	point := influxdb2.NewPoint(
		statsMeasurement,
		map[string]string{
			"paper":   event.PaperID,
			"version": event.VersionID,
			"kind":    string(event.Kind),
		},
		map[string]interface{}{
			"count": event.Count,
		},
		time.Now().UTC(),
	)
	e.write.WritePoint(point)
}

// Close flushes buffered points and shuts the client down.
func (e *InfluxExporter) Close() {
	e.write.Flush()
	e.client.Close()
}
