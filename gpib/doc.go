// Package gpib is a client for GPIB-to-LAN adapters that speak the
// "++" command protocol over TCP (Prologix-style controllers).
//
// A [Session] owns one TCP connection to one adapter.  [Connect]
// performs the adapter handshake, after which commands can be sent raw
// ([Session.SendRaw]) or to a specific instrument ([Session.SendTo]).
// The session remembers which GPIB address is selected on the adapter
// and only emits "++addr <n>" when the target changes.
//
// Responses are read into a fixed-size buffer owned by the session.
// A response larger than the buffer fails with [BufferOverflowError]
// instead of growing memory or reading until the adapter closes the
// connection, which it never does between commands.
//
// A Session is not safe for concurrent use.  Give each worker its own
// session, or wrap it with [Share] and hold the lock across an
// address-select and send pair.
package gpib
