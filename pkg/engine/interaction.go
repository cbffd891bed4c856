package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Interaction is an instruction to invoke an external target with an
// arbitrary payload, used for liquidity sourcing or price discovery.
type Interaction struct {
	Target  common.Address
	Payload []byte
}

// Encode serializes one interaction record:
// length(2, payload size) || target(20) || payload.
func (x *Interaction) Encode() []byte {
	buf := make([]byte, 0, 2+20+len(x.Payload))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(x.Payload)))
	buf = append(buf, x.Target.Bytes()...)
	buf = append(buf, x.Payload...)
	return buf
}

// DecodeInteractions parses exactly count variable-length records.
// Fails with ErrMalformedInput if the stream runs out before count
// records are read, or if bytes remain afterward.
func DecodeInteractions(data []byte, count int) ([]Interaction, error) {
	r := newReader(data)
	interactions := make([]Interaction, 0, count)
	for i := 0; i < count; i++ {
		size, err := r.uint16be()
		if err != nil {
			return nil, fmt.Errorf("interaction %d: %w", i, err)
		}
		target, err := r.address()
		if err != nil {
			return nil, fmt.Errorf("interaction %d: %w", i, err)
		}
		payload, err := r.take(int(size))
		if err != nil {
			return nil, fmt.Errorf("interaction %d: %w", i, err)
		}
		interactions = append(interactions, Interaction{
			Target:  target,
			Payload: append([]byte(nil), payload...),
		})
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d interactions",
			ErrMalformedInput, r.remaining(), count)
	}
	return interactions, nil
}
