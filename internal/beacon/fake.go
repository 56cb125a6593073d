package beacon

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Fake is a deterministic Authority for tests.
type Fake struct {
	// AuthorityName is returned by Name; "fake" when empty.
	AuthorityName string

	// Genesis and Period define the round schedule. Period defaults to 1s.
	Genesis time.Time
	Period  time.Duration

	// CurrentRound is the latest published round.
	CurrentRound uint64

	RoundAtError error
	EncryptError error
	DecryptError error
	ReachedError error
}

const fakePrefix = "FAKE_TLOCK:"

func (f *Fake) Name() string {
	if f.AuthorityName == "" {
		return "fake"
	}
	return f.AuthorityName
}

func (f *Fake) RoundAt(_ context.Context, t time.Time) (uint64, error) {
	if f.RoundAtError != nil {
		return 0, f.RoundAtError
	}
	period := f.Period
	if period <= 0 {
		period = time.Second
	}
	elapsed := t.Sub(f.Genesis)
	if elapsed < 0 {
		return 0, fmt.Errorf("time %s is before genesis", t.Format(time.RFC3339))
	}
	round := uint64(elapsed / period)
	if elapsed%period != 0 {
		round++
	}
	return round + 1, nil
}

func (f *Fake) TimeLockEncrypt(_ context.Context, data []byte, round uint64) (string, error) {
	if f.EncryptError != nil {
		return "", f.EncryptError
	}
	return fmt.Sprintf("%s%d:%s", fakePrefix, round, base64.StdEncoding.EncodeToString(data)), nil
}

func (f *Fake) TimeLockDecrypt(_ context.Context, ct string) ([]byte, error) {
	if f.DecryptError != nil {
		return nil, f.DecryptError
	}
	rest, ok := strings.CutPrefix(ct, fakePrefix)
	if !ok {
		return nil, fmt.Errorf("invalid fake tlock ciphertext")
	}
	var round uint64
	i := strings.IndexByte(rest, ':')
	if i < 0 {
		return nil, fmt.Errorf("invalid fake tlock ciphertext")
	}
	if _, err := fmt.Sscanf(rest[:i], "%d", &round); err != nil {
		return nil, fmt.Errorf("invalid fake tlock ciphertext: %w", err)
	}
	if round > f.CurrentRound {
		return nil, ErrTooEarly
	}
	return base64.StdEncoding.DecodeString(rest[i+1:])
}

func (f *Fake) Reached(_ context.Context, round uint64) (bool, error) {
	if f.ReachedError != nil {
		return false, f.ReachedError
	}
	return f.CurrentRound >= round, nil
}
