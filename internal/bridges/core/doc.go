// Package core implements the message router and connection-recovery core
// shared by every Gray Logic RF bridge.
//
// A bridge owns one serial-attached transceiver. A single reader goroutine
// pulls frames from the adapter, hands them to a protocol Decoder and feeds
// every decoded event to the Router:
//
//	Transport ──► Decoder ──► Router ──► DeviceRegistry ──► Handler.Update
//	                             │
//	                             └──────► DiscoveryRelay ──► CandidateSink
//
// Outbound commands never touch the connection directly. They run inside
// WriteGate.WithLock, which is the same lock the Controller holds while it
// replaces a faulted connection:
//
//	caller ──► WriteGate.WithLock(func(conn) { conn.Write(...) })
//
// # Connection States
//
//	Closed ──Initialize──► Opening ──► Open
//	                          │          │ read fault
//	                          ▼          ▼
//	                       Closed     Opening ──► Open
//	                                     │
//	                                     └──► Faulted (until Initialize)
//
// Each fault produces exactly one reopen attempt after a fixed backoff.
// The backoff is cancelled by Dispose.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
// Handlers are called from the reader goroutine, one message at a time, in
// decode order.
package core
