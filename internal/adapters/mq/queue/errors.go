package queue

import (
	"fmt"

	"github.com/okian/checkin/internal/domain/model"
)

// Sentinel kinds for queue errors.
var (
	ErrNotDrained = fmt.Errorf("%w: queue not drained before deadline", model.ErrUnavailable)
)
