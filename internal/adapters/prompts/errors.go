package prompts

import (
	"fmt"

	"github.com/okian/readaloud/internal/domain/scoring"
)

// Sentinel errors. Both wrap scoring.ErrConfig.
var (
	ErrNotFound = fmt.Errorf("%w: unknown prompt", scoring.ErrConfig)
	ErrEmpty    = fmt.Errorf("%w: prompt catalog is empty", scoring.ErrConfig)
	ErrInvalid  = fmt.Errorf("%w: invalid prompt catalog", scoring.ErrConfig)
)
