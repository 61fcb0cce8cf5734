package pdu

import (
	"fmt"
	"strings"
)

// Family selects the PDU type numbering and the set of operations.
type Family int

const (
	// FamilyCharacteristic is the connection oriented single-peer family.
	FamilyCharacteristic Family = iota
	// FamilyObjShare is the object sharing family.
	FamilyObjShare
)

// String implements fmt.Stringer.
func (f Family) String() string {
	if f == FamilyObjShare {
		return "objshare"
	}
	return "characteristic"
}

// ParseFamily parses the name of a Family.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(s) {
	case "characteristic", "char", "":
		return FamilyCharacteristic, nil
	case "objshare", "object", "obj":
		return FamilyObjShare, nil
	}
	return FamilyCharacteristic, fmt.Errorf("unknown protocol family %q", s)
}

// Side is the part a Protocol plays in an exchange.
type Side int

const (
	// SideRequester sends requests and receives responses (client, host).
	SideRequester Side = iota
	// SideResponder receives requests and sends responses (server, peripheral).
	SideResponder
)

// String implements fmt.Stringer.
func (s Side) String() string {
	if s == SideResponder {
		return "responder"
	}
	return "requester"
}

// Type is the PDU type tag, the first byte after any addresses.
type Type byte

// Characteristic family PDU types.
const (
	CharCheckReq Type = iota
	CharCheckResp
	CharPollReq
	CharPollResp
	CharConnectionReq
	CharConnectionResp
	CharDisconnectionReq
	CharDisconnectionResp
	CharReadReq
	CharReadResp
	CharWriteReq
	CharWriteResp
)

// Object-share family PDU types.
const (
	ObjReadReq Type = iota
	ObjReadResp
	ObjWriteReq
	ObjWriteResp
	ObjPollReq
	ObjPollResp
)

// Result is the operation result carried by some responses.
type Result byte

const (
	// ResultFailure means the peer refused the operation.
	ResultFailure Result = 0x00
	// ResultSuccess means the operation was performed.
	ResultSuccess Result = 0x01
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case ResultFailure:
		return "failure"
	case ResultSuccess:
		return "success"
	}
	return fmt.Sprintf("result(%d)", byte(r))
}

// Op is a family independent operation.
type Op int

const (
	OpCheck Op = iota
	OpPoll
	OpConnect
	OpDisconnect
	OpRead
	OpWrite
)

var opNames = [...]string{"check", "poll", "connect", "disconnect", "read", "write"}

// String implements fmt.Stringer.
func (o Op) String() string {
	if o >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

type typePair struct {
	req, resp Type
	ok        bool
}

var familyTypes = map[Family][]typePair{
	FamilyCharacteristic: {
		OpCheck:      {CharCheckReq, CharCheckResp, true},
		OpPoll:       {CharPollReq, CharPollResp, true},
		OpConnect:    {CharConnectionReq, CharConnectionResp, true},
		OpDisconnect: {CharDisconnectionReq, CharDisconnectionResp, true},
		OpRead:       {CharReadReq, CharReadResp, true},
		OpWrite:      {CharWriteReq, CharWriteResp, true},
	},
	FamilyObjShare: {
		OpPoll:  {ObjPollReq, ObjPollResp, true},
		OpRead:  {ObjReadReq, ObjReadResp, true},
		OpWrite: {ObjWriteReq, ObjWriteResp, true},
	},
}

// Supports reports whether the family defines op.
func (f Family) Supports(op Op) bool {
	pairs := familyTypes[f]
	return op >= 0 && int(op) < len(pairs) && pairs[op].ok
}

// Request returns the request type of op.
func (f Family) Request(op Op) (Type, bool) {
	if !f.Supports(op) {
		return 0, false
	}
	return familyTypes[f][op].req, true
}

// Response returns the response type of op.
func (f Family) Response(op Op) (Type, bool) {
	if !f.Supports(op) {
		return 0, false
	}
	return familyTypes[f][op].resp, true
}

// Lookup finds the operation of a type tag.
func (f Family) Lookup(t Type) (op Op, response bool, ok bool) {
	for n, pair := range familyTypes[f] {
		if !pair.ok {
			continue
		}
		if pair.req == t {
			return Op(n), false, true
		}
		if pair.resp == t {
			return Op(n), true, true
		}
	}
	return 0, false, false
}

// TypeName returns a readable name of a type tag.
func (f Family) TypeName(t Type) string {
	op, resp, ok := f.Lookup(t)
	if !ok {
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
	if resp {
		return op.String() + "-resp"
	}
	return op.String() + "-req"
}

// layout lists the fields following the type tag.
type layout struct {
	id     bool
	result bool
	data   bool
}

func layoutOf(op Op, response bool) layout {
	if !response {
		switch op {
		case OpRead:
			return layout{id: true}
		case OpWrite:
			return layout{id: true, data: true}
		}
		return layout{}
	}
	switch op {
	case OpCheck:
		return layout{data: true}
	case OpConnect, OpWrite:
		return layout{result: true}
	case OpRead:
		return layout{result: true, data: true}
	}
	return layout{}
}
