// Package influxdb records device channel updates as time series.
//
// Every numeric channel update becomes one point whose measurement is the
// channel name (e.g. "desired-temperature", "energy-total") tagged with
// device_id, family and address. Bridges also write their last RSSI as the
// "rssi" measurement tagged with the bridge id.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteChannel("living-room", "fht", "4321", "desired-temperature", 21.5, time.Now())
//
// Writes are batched according to batch_size and flush_interval and never
// block the caller. Failures are reported through SetOnError.
package influxdb
