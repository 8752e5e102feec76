package candidate

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spigell/aura-hire/internal/apperr"
)

const avatarURLTemplate = "https://api.dicebear.com/8.x/lorelei/svg?seed=%s"

// Status is the lifecycle value of a candidate in the hiring pipeline.
type Status string

const (
	StatusPendingInterview Status = "Pending Interview"
	StatusInterviewing     Status = "Interviewing"
	StatusCompleted        Status = "Completed"
	StatusHired            Status = "Hired"
)

// Statuses returns every known status in pipeline order.
func Statuses() []Status {
	return []Status{StatusPendingInterview, StatusInterviewing, StatusCompleted, StatusHired}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses() {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

// ParseStatus accepts the display form ("Pending Interview") as well as compact
// identifiers like "PendingInterview", "pending-interview" or "pending".
func ParseStatus(raw string) (Status, error) {
	key := compactStatus(raw)
	if key == "" {
		return "", fmt.Errorf("%w: status is required", apperr.ErrValidation)
	}

	switch key {
	case "pendinginterview", "pending":
		return StatusPendingInterview, nil
	case "interviewing":
		return StatusInterviewing, nil
	case "completed", "complete":
		return StatusCompleted, nil
	case "hired":
		return StatusHired, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, raw)
	}
}

func compactStatus(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch r {
		case ' ', '-', '_':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Candidate is a person moving through the interview pipeline.
// Timestamps are Unix milliseconds issued by the registry clock.
type Candidate struct {
	ID         string `json:"id" mapstructure:"id"`
	Name       string `json:"name" mapstructure:"name"`
	Position   string `json:"position" mapstructure:"position"`
	AvatarURL  string `json:"avatarUrl" mapstructure:"avatarUrl"`
	Status     Status `json:"status" mapstructure:"status"`
	CreatedAt  int64  `json:"createdAt" mapstructure:"createdAt"`
	LastActive int64  `json:"lastActive" mapstructure:"lastActive"`
	// Seq is the insertion order, starting at 1. It breaks CreatedAt ties.
	Seq uint64 `json:"seq" mapstructure:"seq"`
}

// AvatarURL derives the avatar image URL from a candidate name.
func AvatarURL(name string) string {
	seed := strings.Join(strings.Fields(name), "")
	return fmt.Sprintf(avatarURLTemplate, url.QueryEscape(seed))
}

// ValidateNew checks the fields supplied when a candidate is created and
// returns them trimmed.
func ValidateNew(name, position string) (string, string, error) {
	name = strings.TrimSpace(name)
	position = strings.TrimSpace(position)

	switch {
	case name == "" && position == "":
		return "", "", fmt.Errorf("%w: name and position are required", apperr.ErrValidation)
	case name == "":
		return "", "", fmt.Errorf("%w: name is required", apperr.ErrValidation)
	case position == "":
		return "", "", fmt.Errorf("%w: position is required", apperr.ErrValidation)
	}

	return name, position, nil
}
