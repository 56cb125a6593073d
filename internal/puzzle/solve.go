package puzzle

import (
	"context"
	"fmt"
	"math/big"

	"timelock/internal/logging"
	"timelock/internal/squaring"
	"timelock/internal/symmetric"
)

// Solve performs the remaining squarings and recovers the message.
//
// Cancellation of ctx is honoured between squarings only. When it happens
// Solve returns an error matching ErrInterrupted and the puzzle reflects
// exactly the squarings completed so far. Solving an already solved puzzle
// is a no-op.
func (p *Puzzle) Solve(ctx context.Context, opts ...SolveOption) error {
	if p.solution != nil {
		return nil
	}

	o := newSolveOptions(opts)
	log := o.logger

	chain := squaring.NewChain(p.n, p.base, p.remaining)
	commit := func() {
		p.base = chain.Value()
		p.remaining = chain.Remaining()
	}
	// Every exit path, including a panicking observer, leaves the pair
	// consistent with the squarings performed.
	defer commit()

	log.Debug("solving", logging.Remaining(p.remaining), logging.Total(p.total))

	for !chain.Done() {
		if err := ctx.Err(); err != nil {
			log.Debug("solving interrupted", logging.Remaining(chain.Remaining()))
			return fmt.Errorf("%w: %w", ErrInterrupted, err)
		}

		chain.Step()

		if o.progress != nil {
			o.progress(p.total-chain.Remaining(), p.total)
		}

		if o.checkpoint != nil && o.checkpointEvery > 0 &&
			chain.Completed()%o.checkpointEvery == 0 && !chain.Done() {
			commit()
			if err := o.checkpoint(p); err != nil {
				return fmt.Errorf("checkpoint failed: %w", err)
			}
		}
	}
	commit()

	if err := p.unlock(o.cipher); err != nil {
		return err
	}

	log.Debug("solved", logging.Total(p.total))
	return nil
}

// unlock recovers the key from the finished chain and opens the message.
func (p *Puzzle) unlock(c symmetric.Cipher) error {
	keyInt := new(big.Int).Sub(p.encryptedKey, p.base)
	keyInt.Mod(keyInt, p.n)

	if keyInt.BitLen() > 8*p.keyLength {
		return fmt.Errorf("recovered key wider than %d bytes: %w", p.keyLength, symmetric.ErrAuthenticationFailed)
	}

	key := keyInt.FillBytes(make([]byte, p.keyLength))
	defer zero(key)

	message, err := c.Decrypt(key, p.encryptedMessage)
	if err != nil {
		return err
	}

	p.solution = &message
	return nil
}
