package taskstore

import (
	"fmt"

	"github.com/okian/checkin/internal/domain/model"
)

// Sentinel kinds for task store errors.
var (
	ErrTaskFinished = model.ErrTaskFinished
	ErrNotClaimed   = fmt.Errorf("%w: task is not in progress", model.ErrConflict)
	ErrDuplicateID  = fmt.Errorf("%w: task id already exists", model.ErrConflict)
)
