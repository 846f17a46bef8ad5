package protocol

// MaxFrameDepth limits how deeply Inspect descends into nested frames.
// Each level costs at least 3 bytes, so a 64KB datagram could otherwise
// drive recursion more than 20000 levels deep.
const MaxFrameDepth = 64

// depthContext tracks the current nesting depth while walking frames.
type depthContext struct {
	current int
	max     int
}

// newDepthContext creates a depth context with the given maximum.
// A max <= 0 selects MaxFrameDepth.
func newDepthContext(max int) *depthContext {
	if max <= 0 {
		max = MaxFrameDepth
	}
	return &depthContext{max: max}
}

// enter increments the depth and returns an error if the limit would be exceeded.
// The depth is only incremented on success.
func (dc *depthContext) enter() error {
	if dc.current >= dc.max {
		return ErrMaxDepthExceeded
	}
	dc.current++
	return nil
}

// leave decrements the depth.
func (dc *depthContext) leave() {
	dc.current--
}
