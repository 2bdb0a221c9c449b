package types

import (
	"errors"
	"fmt"

	"github.com/okian/readaloud/internal/domain/scoring"
)

// Service-level failures the HTTP layer maps to status codes.
var (
	ErrNotStarted           = errors.New("service not started")
	ErrBackpressure         = errors.New("scoring queue is full")
	ErrReferenceUnavailable = fmt.Errorf("%w: reference audio unavailable", scoring.ErrConfig)
)
