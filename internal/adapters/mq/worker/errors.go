package worker

import (
	"errors"
	"fmt"

	"github.com/okian/checkin/internal/domain/model"
)

// Sentinel kinds for worker errors.
var (
	ErrUnknownKind  = fmt.Errorf("%w: unknown task kind", model.ErrTaskFailure)
	ErrHandlerPanic = fmt.Errorf("%w: task handler panicked", model.ErrTaskFailure)
	ErrStopTimeout  = errors.New("worker stop timed out")
)
