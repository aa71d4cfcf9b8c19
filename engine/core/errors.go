package core

import (
	"errors"
)

var (
	ErrUnknown      = errors.New("unknown")
	ErrNotSupported = errors.New("operation not supported")

	// configuration errors
	ErrInvalidConfig            = errors.New("invalid configuration")
	ErrBindlessCapacityExceeded = errors.New("bindless image array capacity exceeded")
	ErrMissingCamera            = errors.New("scene has no camera")
	ErrNoInstances              = errors.New("scene has no mesh instances")

	// invariant violations
	ErrMissingMesh      = errors.New("mesh component has no model")
	ErrMissingMaterial  = errors.New("mesh component has no material")
	ErrDuplicateBinding = errors.New("binding registered twice in the same layout")
	ErrUnknownBinding   = errors.New("binding not declared by the pipeline layout")
	ErrInvalidMesh      = errors.New("invalid mesh data")
	ErrInvalidBVH       = errors.New("malformed bounding volume hierarchy")

	// resource errors
	ErrBufferAllocation = errors.New("failed to allocate device buffer")
	ErrShaderModule     = errors.New("failed to create shader module")
	ErrDeviceLost       = errors.New("device lost")
	ErrPipelineNotReady = errors.New("pipeline not ready")
	ErrSyncHazard       = errors.New("buffer consumed without a covering pipeline barrier")

	// jobs
	ErrNoWorkers           = errors.New("attempting to create worker pool with less than 1 worker")
	ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")
	ErrJobSystemClosed     = errors.New("job system has been shut down")
	ErrFutureNotReady      = errors.New("future result is not ready")
)
