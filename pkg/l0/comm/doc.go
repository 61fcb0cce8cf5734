// Package comm provides L0 framing over a serial byte stream.
package comm

// L0 frames carry one PDU each over a peer-to-peer channel (e.g. UART)
// that may drop or corrupt bytes. The framing is self-resynchronizing:
// any byte run that is not a complete valid frame is discarded and the
// receiver waits for the next start marker.
//
// Wire format:
//
//	START escaped(payload ++ CRC-hi ++ CRC-lo) TERMINATE
//
// START (0x0D), TERMINATE (0x3A) and ESCAPE (0x3B) never appear inside
// a frame. Occurrences in payload or CRC bytes are sent as ESCAPE followed
// by a code: 0x00 for START, 0x01 for TERMINATE, 0x02 for ESCAPE.
//
// The CRC is CRC16 seeded with 0xFFFF over the payload. Running the same
// CRC over payload and both CRC bytes yields zero for an intact frame.
//
// Two framer designs share the Framer interface. QueuedFramer accumulates
// received bytes in a ring buffer and searches it for delimiters on each
// Execute. StreamFramer feeds bytes one at a time through a Parser.
// Neither runs goroutines: transport notifications only buffer bytes or
// set flags, and all protocol work happens in Execute.
