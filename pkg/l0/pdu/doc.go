// Package pdu encodes and decodes typed PDUs on top of L0 frames.
//
// Two protocol families are supported. The characteristic family talks to
// a single peer and carries a connection handshake. The object-share family
// reads and writes objects, optionally with 1-byte source and destination
// addresses in front of every PDU.
//
// A Protocol is configured by a Role: the family, which side of the
// exchange it plays, and whether frames are addressed. The same field
// layout table drives encoding on one side and decoding on the other.
package pdu
