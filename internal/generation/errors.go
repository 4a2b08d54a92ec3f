package generation

import "errors"

var (
	ErrEmptyInput          = errors.New("generation: content input is required")
	ErrBatchNotFound       = errors.New("generation: parent batch not found")
	ErrVariationDepth      = errors.New("generation: variations of variations are not supported")
	ErrGenerationFailed    = errors.New("generation: caption generation failed")
	ErrNoCaptionsGenerated = errors.New("generation: generator returned no captions")
)
