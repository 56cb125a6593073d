// Package card persists wrapped puzzles as cards in a local store.
//
// Each card lives in its own directory named by a UUID:
//
//	meta.json        card metadata, replaced atomically
//	puzzle.bin       serialized puzzle, replaced atomically on progress
//	message          the recovered message, present once unwrapped
//	message.pending  transient, see Materialize
package card

import (
	"errors"
	"time"

	"timelock/internal/beacon"
	"timelock/internal/calibrate"
)

const (
	MaxInputSize = 10 * 1024 * 1024 // 10MB
)

// Card states.
const (
	StateWrapped   = "wrapped"
	StateUnwrapped = "unwrapped"
)

// How a card was unwrapped.
const (
	UnwrappedByPuzzle = "puzzle"
	UnwrappedByBeacon = "beacon"
)

const (
	metaFileName    = "meta.json"
	puzzleFileName  = "puzzle.bin"
	messageFileName = "message"
	pendingSuffix   = ".pending"
	tmpSuffix       = ".tmp"
)

var (
	ErrNotFound     = errors.New("card not found")
	ErrInvalidID    = errors.New("invalid card id")
	ErrNotUnwrapped = errors.New("card is not unwrapped")
	ErrEmptyInput   = errors.New("input is empty")
	ErrInputTooBig  = errors.New("input exceeds maximum size")
)

type InputSource int

const (
	InputSourceFile InputSource = iota
	InputSourceStdin
)

func (i InputSource) String() string {
	if i == InputSourceFile {
		return "file"
	}
	return "stdin"
}

// Card is the metadata of a wrapped puzzle.
type Card struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DesiredDuration     time.Duration `json:"desired_duration"`
	Rate                uint64        `json:"rate"`
	TotalIterations     uint64        `json:"total_iterations"`
	RemainingIterations uint64        `json:"remaining_iterations"`
	ModulusBits         int           `json:"modulus_bits"`
	Cipher              string        `json:"cipher"`
	HasInstructions     bool          `json:"has_instructions"`

	InputType    string `json:"input_type"`
	OriginalPath string `json:"original_path,omitempty"`

	UnwrappedBy string         `json:"unwrapped_by,omitempty"`
	Beacon      *beacon.Escrow `json:"beacon,omitempty"`
}

// Progress returns the fraction of squarings performed.
func (c *Card) Progress() float64 {
	if c.TotalIterations == 0 {
		return 1
	}
	return float64(c.TotalIterations-c.RemainingIterations) / float64(c.TotalIterations)
}

// EstimatedRemaining is the expected wall time left at the recorded rate.
func (c *Card) EstimatedRemaining() time.Duration {
	if c.State == StateUnwrapped || c.Rate == 0 {
		return 0
	}
	return calibrate.Duration(c.Rate, c.RemainingIterations)
}
