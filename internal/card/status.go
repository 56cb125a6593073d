package card

import (
	"fmt"
	"strings"
	"time"
)

// StatusResult contains the results of a status check.
type StatusResult struct {
	Cards            []*Card
	ValidationFailed bool
	ValidationErrors []error
}

// Status lists all cards, recovering interrupted unwraps and validating
// each card's invariants.
func (s *Store) Status() (StatusResult, error) {
	cards, err := s.List()
	if err != nil {
		return StatusResult{}, err
	}

	var result StatusResult
	for _, c := range cards {
		cardDir := s.cardDir(c.ID)

		if err := s.recoverPending(c, cardDir); err != nil {
			result.ValidationFailed = true
			result.ValidationErrors = append(result.ValidationErrors, err)
			continue
		}
		if err := ValidateCard(s.fs, c, cardDir); err != nil {
			result.ValidationFailed = true
			result.ValidationErrors = append(result.ValidationErrors, err)
			continue
		}
		result.Cards = append(result.Cards, c)
	}

	return result, nil
}

// Summary is the printable view of a card.
type Summary struct {
	ID                 string  `json:"id" yaml:"id"`
	State              string  `json:"state" yaml:"state"`
	CreatedAt          string  `json:"created_at" yaml:"created_at"`
	DesiredDuration    string  `json:"desired_duration" yaml:"desired_duration"`
	Progress           float64 `json:"progress" yaml:"progress"`
	Remaining          uint64  `json:"remaining_iterations" yaml:"remaining_iterations"`
	Total              uint64  `json:"total_iterations" yaml:"total_iterations"`
	EstimatedRemaining string  `json:"estimated_remaining,omitempty" yaml:"estimated_remaining,omitempty"`
	UnwrappedBy        string  `json:"unwrapped_by,omitempty" yaml:"unwrapped_by,omitempty"`
	BeaconUnlockAt     string  `json:"beacon_unlock_at,omitempty" yaml:"beacon_unlock_at,omitempty"`
}

// Summarize returns the printable view of c.
func Summarize(c *Card) Summary {
	s := Summary{
		ID:              c.ID,
		State:           c.State,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
		DesiredDuration: c.DesiredDuration.String(),
		Progress:        c.Progress(),
		Remaining:       c.RemainingIterations,
		Total:           c.TotalIterations,
		UnwrappedBy:     c.UnwrappedBy,
	}
	if c.State == StateWrapped {
		s.EstimatedRemaining = c.EstimatedRemaining().Round(time.Second).String()
	}
	if c.Beacon != nil {
		s.BeaconUnlockAt = c.Beacon.UnlockAt.Format(time.RFC3339)
	}
	return s
}

// FormatStatus formats cards for display.
func FormatStatus(cards []*Card) string {
	if len(cards) == 0 {
		return "no cards\n"
	}

	var b strings.Builder
	for _, c := range cards {
		s := Summarize(c)
		fmt.Fprintf(&b, "id: %s\nstate: %s\ncreated_at: %s\ndesired_duration: %s\nprogress: %.1f%% (%d/%d)\n",
			s.ID, s.State, s.CreatedAt, s.DesiredDuration, 100*s.Progress, s.Total-s.Remaining, s.Total)
		if s.EstimatedRemaining != "" {
			fmt.Fprintf(&b, "estimated_remaining: %s\n", s.EstimatedRemaining)
		}
		if s.UnwrappedBy != "" {
			fmt.Fprintf(&b, "unwrapped_by: %s\n", s.UnwrappedBy)
		}
		if s.BeaconUnlockAt != "" {
			fmt.Fprintf(&b, "beacon_unlock_at: %s\n", s.BeaconUnlockAt)
		}
		b.WriteString("\n")
	}
	return b.String()
}
