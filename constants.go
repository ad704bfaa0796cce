package blockwheel

import "github.com/behrlich/blockwheel/internal/constants"

// Re-exported defaults for the public API, mirroring the teacher's
// top-level constant re-export of internal/constants.
const (
	DefaultCapacity              = constants.DefaultCapacity
	DefaultDefragInProgressLimit = constants.DefaultDefragInProgressLimit
	DefaultCacheCapacity         = constants.DefaultCacheCapacity
)
