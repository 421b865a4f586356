package domain

import "fmt"

// Long-term ordering choices for the board.
const (
	LongTermCreatedAsc  = "created_asc"
	LongTermCreatedDesc = "created_desc"
	LongTermEndAsc      = "end_asc"
)

// Settings represents user configurable board options.
type Settings struct {
	// CompletedRetentionDays hides completed tasks not touched for this many
	// days from the board. Zero keeps them all.
	CompletedRetentionDays int    `json:"completed_retention_days"`
	LongTermOrder          string `json:"long_term_order"`
}

// DefaultSettings is served to users that never saved settings.
func DefaultSettings() Settings {
	return Settings{LongTermOrder: LongTermCreatedAsc}
}

// Validate fills defaults and rejects out of range values.
func (s *Settings) Validate() error {
	if s.CompletedRetentionDays < 0 || s.CompletedRetentionDays > 3650 {
		return fmt.Errorf("completed_retention_days out of range: %d", s.CompletedRetentionDays)
	}
	switch s.LongTermOrder {
	case "":
		s.LongTermOrder = LongTermCreatedAsc
	case LongTermCreatedAsc, LongTermCreatedDesc, LongTermEndAsc:
	default:
		return fmt.Errorf("unknown long_term_order %q", s.LongTermOrder)
	}
	return nil
}
