// ABOUTME: Linear resampler for converting audio sample rates
// ABOUTME: Keeps the last input frame so consecutive chunks interpolate seamlessly
package resample

// Resampler performs linear interpolation to convert between sample rates.
// It is stateful: feed chunks of one stream in order, call Reset after a seek.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64 // fractional read position, relative to carry
	carry      []int32 // last frame of the previous chunk
	hasCarry   bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	if channels <= 0 {
		channels = 1
	}
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		carry:      make([]int32, channels),
	}
}

// Passthrough reports whether input and output rates match
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// Process converts one chunk of interleaved input and returns the output frames
// it completes. Input shorter than one frame is buffered implicitly via carry.
func (r *Resampler) Process(input []int32) []int32 {
	if r.Passthrough() {
		return input
	}

	frames := len(input) / r.channels
	if frames == 0 {
		return nil
	}

	// Virtual input = carry frame (if any) followed by this chunk
	offset := 0
	if r.hasCarry {
		offset = 1
	}
	total := frames + offset

	frameAt := func(i int) []int32 {
		if i < offset {
			return r.carry
		}
		start := (i - offset) * r.channels
		return input[start : start+r.channels]
	}

	out := make([]int32, 0, int(float64(total)/r.ratio+1)*r.channels)
	for {
		idx := int(r.position)
		if idx+1 >= total {
			break
		}
		frac := r.position - float64(idx)
		a, b := frameAt(idx), frameAt(idx+1)
		for ch := 0; ch < r.channels; ch++ {
			out = append(out, int32(float64(a[ch])*(1-frac)+float64(b[ch])*frac))
		}
		r.position += r.ratio
	}

	// Re-base the position on the last frame, which becomes the new carry
	r.position -= float64(total - 1)
	copy(r.carry, frameAt(total-1))
	r.hasCarry = true

	return out
}

// Reset forgets buffered state, used after a seek
func (r *Resampler) Reset() {
	r.position = 0
	r.hasCarry = false
	for i := range r.carry {
		r.carry[i] = 0
	}
}

// Remix converts interleaved samples between channel counts. Mono is
// duplicated to every output channel; extra channels are averaged into mono
// or dropped beyond the first two.
func Remix(input []int32, from, to int) []int32 {
	if from == to || from <= 0 || to <= 0 {
		return input
	}

	frames := len(input) / from
	out := make([]int32, frames*to)
	for f := 0; f < frames; f++ {
		src := input[f*from : f*from+from]
		dst := out[f*to : f*to+to]
		switch {
		case from == 1:
			for ch := range dst {
				dst[ch] = src[0]
			}
		case to == 1:
			var sum int64
			for _, s := range src {
				sum += int64(s)
			}
			dst[0] = int32(sum / int64(from))
		default:
			for ch := range dst {
				if ch < from {
					dst[ch] = src[ch]
				} else {
					dst[ch] = src[from-1]
				}
			}
		}
	}
	return out
}
