package core

const AVG_COUNT uint8 = 30

// Metrics tracks frame timings along with per-frame GPU scene upload counters.
type Metrics struct {
	frameAVGCounter    uint8
	msTimes            [AVG_COUNT]float64
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64

	// counters reset every frame
	uploadedBytes uint64
	dispatches    uint32
	indirectDraws uint32
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Update folds the elapsed frame time (seconds) into the averages and resets the frame counters.
func (m *Metrics) Update(frameElapsedTime float64) {
	frameMS := frameElapsedTime * 1000.0
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == AVG_COUNT-1 {
		sum := 0.0
		for i := uint8(0); i < AVG_COUNT; i++ {
			sum += m.msTimes[i]
		}
		m.msAvg = sum / float64(AVG_COUNT)
	}
	m.frameAVGCounter++
	m.frameAVGCounter %= AVG_COUNT

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}
	m.frames++

	m.uploadedBytes = 0
	m.dispatches = 0
	m.indirectDraws = 0
}

func (m *Metrics) AddUpload(bytes uint64) {
	m.uploadedBytes += bytes
}

func (m *Metrics) AddDispatch() {
	m.dispatches++
}

func (m *Metrics) AddIndirectDraw() {
	m.indirectDraws++
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	return m.msAvg
}

// Frame returns the upload, dispatch and indirect draw counters of the current frame.
func (m *Metrics) Frame() (uint64, uint32, uint32) {
	return m.uploadedBytes, m.dispatches, m.indirectDraws
}
