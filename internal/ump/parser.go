package ump

import "errors"

// Errors returned by the UMP parser, per spec.md §4.3/§7.
var (
	// ErrTruncated is returned when fewer words are available than the
	// first word's Message Type requires. The caller re-synchronizes
	// on the next word boundary; the parser holds no state across
	// calls.
	ErrTruncated = errors.New("ump: truncated packet")
	// ErrReserved is returned only when a caller asks for semantic
	// decoding (e.g. translation) of a reserved Message Type; parsing
	// a reserved MT's structural shape (word count, group) always
	// succeeds.
	ErrReserved = errors.New("ump: reserved message type")
)

// Parse decodes a packet from the start of words. It reads exactly
// NumWordsForType(MessageType(words[0])) words and returns
// ErrTruncated if fewer are available.
func Parse(words []uint32) (Packet, error) {
	if len(words) == 0 {
		return Packet{}, ErrTruncated
	}
	mt := MessageType((words[0] >> 28) & 0xF)
	n := NumWordsForType(mt)
	if len(words) < int(n) {
		return Packet{}, ErrTruncated
	}
	var p Packet
	p.MessageType = mt
	p.NumWords = n
	copy(p.Words[:n], words[:n])
	p.Group = uint8((words[0] >> 24) & 0xF)
	return p, nil
}

// RequireSemantic returns ErrReserved if p's Message Type has no
// defined semantic decoding (spec.md §4.3's Reserved classes).
func RequireSemantic(p Packet) error {
	if p.MessageType.reserved() {
		return ErrReserved
	}
	return nil
}

// Serialize returns the packet's words, trimmed to NumWords.
func Serialize(p Packet) []uint32 {
	out := make([]uint32, p.NumWords)
	copy(out, p.Words[:p.NumWords])
	return out
}
