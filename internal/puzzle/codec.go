package puzzle

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// Serialized puzzles start with formatMagic followed by a version byte and
// a deterministic CBOR map with integer keys.
const (
	formatMagic   = "TLPZ"
	formatVersion = 1
	headerSize    = len(formatMagic) + 1
)

type wireState struct {
	Modulus          []byte `cbor:"1,keyasint"`
	Base             []byte `cbor:"2,keyasint"`
	Remaining        uint64 `cbor:"3,keyasint"`
	Total            uint64 `cbor:"4,keyasint"`
	EncryptedKey     []byte `cbor:"5,keyasint"`
	EncryptedMessage []byte `cbor:"6,keyasint"`
	KeyLength        uint32 `cbor:"7,keyasint"`
	Instructions     []byte `cbor:"8,keyasint,omitempty"`
	Solved           bool   `cbor:"9,keyasint,omitempty"`
	Solution         []byte `cbor:"10,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Dump serializes every field of p, including an in-progress chain.
func Dump(p *Puzzle) ([]byte, error) {
	return p.MarshalBinary()
}

// Load decodes a puzzle produced by Dump.
func Load(data []byte) (*Puzzle, error) {
	p := new(Puzzle)
	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return p, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *Puzzle) MarshalBinary() ([]byte, error) {
	w := wireState{
		Modulus:          p.n.Bytes(),
		Base:             p.base.Bytes(),
		Remaining:        p.remaining,
		Total:            p.total,
		EncryptedKey:     p.encryptedKey.Bytes(),
		EncryptedMessage: p.encryptedMessage,
		KeyLength:        uint32(p.keyLength),
		Instructions:     []byte(p.instructions),
	}
	if p.solution != nil {
		w.Solved = true
		w.Solution = []byte(*p.solution)
	}

	body, err := encMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode puzzle: %w", err)
	}

	out := make([]byte, 0, headerSize+len(body))
	out = append(out, formatMagic...)
	out = append(out, formatVersion)
	return append(out, body...), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. The receiver is
// only modified when data decodes to a valid puzzle.
func (p *Puzzle) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize || !bytes.Equal(data[:len(formatMagic)], []byte(formatMagic)) {
		return fmt.Errorf("%w: missing header", ErrCorruptState)
	}
	if v := data[len(formatMagic)]; v != formatVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrCorruptState, v)
	}

	var w wireState
	if err := decMode.Unmarshal(data[headerSize:], &w); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	if !w.Solved && len(w.Solution) > 0 {
		return fmt.Errorf("%w: solution present on unsolved puzzle", ErrCorruptState)
	}
	if !minimal(w.Modulus) || !minimal(w.Base) || !minimal(w.EncryptedKey) {
		return fmt.Errorf("%w: integer with leading zero bytes", ErrCorruptState)
	}

	decoded := Puzzle{
		n:                new(big.Int).SetBytes(w.Modulus),
		base:             new(big.Int).SetBytes(w.Base),
		remaining:        w.Remaining,
		total:            w.Total,
		encryptedKey:     new(big.Int).SetBytes(w.EncryptedKey),
		encryptedMessage: w.EncryptedMessage,
		keyLength:        int(w.KeyLength),
		instructions:     string(w.Instructions),
	}
	if w.Solved {
		s := string(w.Solution)
		decoded.solution = &s
	}

	if err := decoded.validate(); err != nil {
		return err
	}

	*p = decoded
	return nil
}

// minimal reports whether b is the shortest big-endian encoding of its
// value, as produced by big.Int.Bytes.
func minimal(b []byte) bool {
	return len(b) == 0 || b[0] != 0
}

var three = big.NewInt(3)

// validate checks the invariants shared by both constructors.
func (p *Puzzle) validate() error {
	switch {
	case p.n == nil || p.n.Cmp(three) <= 0:
		return fmt.Errorf("%w: modulus too small", ErrCorruptState)
	case p.keyLength <= 0:
		return fmt.Errorf("%w: invalid key length %d", ErrCorruptState, p.keyLength)
	case p.n.BitLen() <= 8*p.keyLength:
		return fmt.Errorf("%w: modulus narrower than key", ErrCorruptState)
	case p.base == nil || p.base.Sign() < 0 || p.base.Cmp(p.n) >= 0:
		return fmt.Errorf("%w: base out of range", ErrCorruptState)
	case p.encryptedKey == nil || p.encryptedKey.Sign() < 0 || p.encryptedKey.Cmp(p.n) >= 0:
		return fmt.Errorf("%w: encrypted key out of range", ErrCorruptState)
	case p.remaining > p.total:
		return fmt.Errorf("%w: remaining %d exceeds total %d", ErrCorruptState, p.remaining, p.total)
	case len(p.encryptedMessage) == 0:
		return fmt.Errorf("%w: empty ciphertext", ErrCorruptState)
	case p.solution != nil && p.remaining != 0:
		return fmt.Errorf("%w: solved with %d iterations remaining", ErrCorruptState, p.remaining)
	}
	return nil
}
