package packet

// ProtocolVersion is sent in C_HELLO and S_HELLO. Clients with another
// version are refused.
const ProtocolVersion = 1

// Client opcodes.
const (
	C_HELLO   byte = 0x01
	C_LOS     byte = 0x10
	C_HITPOS  byte = 0x11
	C_HEIGHT  byte = 0x12
	C_AREA    byte = 0x13
	C_LIQUID  byte = 0x14
	C_WATCH   byte = 0x20
	C_UNWATCH byte = 0x21
	C_STATS   byte = 0x22
)

// Server opcodes. A reply carries the request id of the packet it answers.
const (
	S_HELLO  byte = 0x81
	S_LOS    byte = 0x90
	S_HITPOS byte = 0x91
	S_HEIGHT byte = 0x92
	S_AREA   byte = 0x93
	S_LIQUID byte = 0x94
	S_WATCH  byte = 0xA0
	S_STATS  byte = 0xA2
	S_ERROR  byte = 0xFF
)
