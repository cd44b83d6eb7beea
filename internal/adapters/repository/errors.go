package repository

import (
	"fmt"

	"github.com/okian/checkin/internal/domain/model"
)

// Sentinel kinds for storage errors.
var (
	ErrClosed      = fmt.Errorf("%w: store closed", model.ErrUnavailable)
	ErrEmptyBatch  = fmt.Errorf("%w: empty check-in batch", model.ErrInvalidInput)
	ErrForeignTeam = fmt.Errorf("%w: team belongs to another event", model.ErrTeamNotFound)
)
