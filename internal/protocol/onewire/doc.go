// Package onewire speaks the line protocol of a serial 1-wire gateway.
//
// Outbound lines:
//
//	I           reset the bus
//	C           start a temperature conversion on every sensor
//	R<id>       read one sensor
//	S           search the bus
//
// Inbound lines:
//
//	D<id>:<temp>[:<humidity>]   reading in °C and %RH
//	D<id>:ERR                   read failed (CRC error, no presence)
//	F<id>                       search hit
//	S.                          search finished
//
// Ids are 16 hex digits with the family code first, e.g. 28FF4C6B62160342.
//
// The gateway answers asynchronously, so Poll writes the requests and then
// waits for the readings to come back through the decoder, retrying the
// sensors that stayed silent.
package onewire
