// Package culfw decodes and encodes the text lines spoken by a CUL
// transceiver running culfw.
//
// Every inbound line is decoded into exactly one core.Event per device
// message, followed by a core.SignalStrength when the line carries an RSSI
// suffix (enabled by the "X21" init command).
//
// # Inbound Lines
//
//	T hhhh cc ss vv [rr]           FHT80b report: housecode, command, status, value
//	T aaaaaa vv [rr]               FHT80 TF window contact
//	E hhhh qq tttt pppp mmmm [rr]  EM1000-EM: sequence, total, 5-min avg, 5-min peak
//	H hhhh ss tttt uuuu [rr]       HMS100 TF: status, temperature, humidity
//	v iiiiii dd cccc payload [rr]  EvoHome (RAMSES-II): device id, type, command
//	LOVF | EOB                     transceiver buffer markers
//
// Fields are hex without separators. Anything else (version replies, debug
// output) is passed on as a core.RawFrame; a line with a known prefix that
// does not parse becomes a core.DecodeFault.
//
// # FHT Status Byte
//
//   - bit 0x10: frame was sent by the bridge itself (echo)
//   - bit 0x02: value is one part of a multi-frame report
//
// Multi-frame values (measured temperature, weekday switch times, holiday
// and party end) are assembled per housecode; the intermediate frames are
// emitted with Partial set.
//
// # FHT Commands
//
//	00       valve position (value/2.55 %)
//	14..2f   switch times, four per weekday from Monday, 10-minute units, 0x90 unset
//	3e       mode: 00 auto, 01 manual, 02 holiday, 03 party
//	3f, 40   holiday end (day, month) or party end (10-minute slot, day)
//	41       desired temperature (value/2)
//	42, 43   measured temperature low and high byte (tenths)
//	44       warnings: 0x01 low battery, 0x20 window open
//	45       manual temperature (value/2)
//	60..64   clock: year, month, day, hour, minute
//	66       report trigger (ff)
//	82, 84   day and night temperature (value/2)
//	8a       window-open temperature (value/2)
//
// # EvoHome Commands
//
//	30c9 zone temperature   2309 zone setpoint   3150 heat demand
//	000a zone config        1060 battery state   12b0 window state
//	1f09 system sync
package culfw
