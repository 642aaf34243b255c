package bridge

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vidyann/azure-voicelive-sip-sample/audio"
)

// ulawSilence is the µ-law code for zero amplitude.
const ulawSilence = 0xFF

// DownlinkPipeline carries service audio to the caller. The producer
// side takes PCM16 24 kHz deltas of unpredictable size and cadence,
// transcodes them to µ-law and packetises onto an unbounded queue; the
// consumer side is an io.Reader drained by the RTP sender every 20 ms.
//
// Prebuffering and the low/high watermark pause absorb the mismatch:
// the service emits seconds of audio in a burst, then goes quiet for
// hundreds of milliseconds while generating the next segment. Once
// responseDone is set the reader never pauses, so the tail of a
// finished response always plays out.
type DownlinkPipeline struct {
	tun Tunables
	log zerolog.Logger

	queue *packetQueue

	prebuffered  atomic.Bool
	paused       atomic.Bool
	responseDone atomic.Bool
	closed       atomic.Bool

	// mu guards the partial-packet work buffer, shared between
	// EnqueueChunk and ClearBuffer.
	mu      sync.Mutex
	workBuf []byte
	workLen int
}

func NewDownlinkPipeline(tun Tunables, log zerolog.Logger) *DownlinkPipeline {
	return &DownlinkPipeline{
		tun:     tun,
		log:     log,
		queue:   newPacketQueue(),
		workBuf: make([]byte, tun.WorkBufBytes),
	}
}

// EnqueueChunk takes one PCM16 24 kHz audio delta, splits it to at
// most MaxDeltaChunkBytes pieces, downsamples and µ-law encodes each,
// and packetises the result onto the queue. Partial packets persist in
// the work buffer across calls.
func (d *DownlinkPipeline) EnqueueChunk(pcm24 []byte) {
	if d.closed.Load() || len(pcm24) == 0 {
		return
	}
	for off := 0; off < len(pcm24); off += d.tun.MaxDeltaChunkBytes {
		end := min(off+d.tun.MaxDeltaChunkBytes, len(pcm24))
		d.enqueuePiece(pcm24[off:end])
	}
}

func (d *DownlinkPipeline) enqueuePiece(pcm24 []byte) {
	ulaw := audio.EncodeUlaw(audio.Downsample24To8(pcm24))

	d.mu.Lock()
	defer d.mu.Unlock()
	for pos := 0; pos < len(ulaw); {
		n := copy(d.workBuf[d.workLen:d.tun.RTPPayloadBytes], ulaw[pos:])
		d.workLen += n
		pos += n

		if d.workLen < d.tun.RTPPayloadBytes {
			break
		}
		pkt := make([]byte, d.tun.RTPPayloadBytes)
		copy(pkt, d.workBuf[:d.tun.RTPPayloadBytes])
		d.workLen = 0

		size := d.queue.push(pkt)
		if size >= d.tun.MinPrebufferPackets && d.prebuffered.CompareAndSwap(false, true) {
			d.log.Info().Int("packets", size).Msg("Prebuffering complete, starting playback")
		}
	}
}

// Read implements the paced consumer contract: it returns full packets
// in multiples of RTPPayloadBytes, silence fills while not ready or
// paused, (0, nil) when the queue momentarily has nothing, and io.EOF
// after Close. It blocks at most ReadFirstTimeout.
func (d *DownlinkPipeline) Read(p []byte) (int, error) {
	if d.closed.Load() {
		return 0, io.EOF
	}

	if !d.prebuffered.Load() {
		// A short response can finish below the prebuffer threshold;
		// with responseDone set it must still play out.
		if d.responseDone.Load() && d.queue.len() > 0 {
			d.prebuffered.Store(true)
			d.log.Info().Msg("Response complete below prebuffer threshold, playing out")
		} else {
			return d.fillSilence(p), nil
		}
	}

	queueSize := d.queue.len()
	responseDone := d.responseDone.Load()

	if !d.paused.Load() && queueSize < d.tun.LowWaterPackets && !responseDone {
		d.paused.Store(true)
		d.log.Warn().Int("packets", queueSize).Msg("Queue low, pausing playback to refill")
	}
	if d.paused.Load() && (responseDone || queueSize >= d.tun.HighWaterPackets) {
		d.paused.Store(false)
		d.log.Info().Int("packets", queueSize).Msg("Resuming playback")
	}
	if d.paused.Load() {
		return d.fillSilence(p), nil
	}

	total := 0
	for len(p)-total >= d.tun.RTPPayloadBytes {
		timeout := d.tun.ReadBatchTimeout
		if total == 0 {
			timeout = d.tun.ReadFirstTimeout
		}
		pkt, ok := d.queue.popWait(timeout)
		if !ok {
			if total > 0 {
				break
			}
			if d.closed.Load() {
				return 0, io.EOF
			}
			if d.queue.len() == 0 {
				// Fully drained; the next response prebuffers again.
				d.prebuffered.Store(false)
				d.log.Debug().Msg("Queue drained, prebuffering reset")
				return 0, nil
			}
			d.log.Warn().Msg("Playback underrun, no packet within timeout")
			return 0, nil
		}
		total += copy(p[total:], pkt)
	}

	if size := d.queue.len(); size > d.tun.QueueWarnPackets {
		d.log.Warn().Int("packets", size).Msg("Downlink queue unusually large")
	}
	return total, nil
}

// ClearBuffer drops all queued packets and the partial packet on a
// barge-in, and resets the prebuffer so the next response starts
// clean. Safe from any goroutine.
func (d *DownlinkPipeline) ClearBuffer() {
	d.mu.Lock()
	d.workLen = 0
	d.mu.Unlock()

	dropped := d.queue.clear()
	d.prebuffered.Store(false)
	d.paused.Store(false)
	d.log.Info().Int("dropped_packets", dropped).Msg("Playback buffers cleared")
}

// SetResponseDone marks whether the service finished emitting audio
// for the current response.
func (d *DownlinkPipeline) SetResponseDone(done bool) {
	d.responseDone.Store(done)
}

// Close makes subsequent reads return io.EOF and wakes a blocked
// reader.
func (d *DownlinkPipeline) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.queue.close()
	d.log.Debug().Msg("Downlink closed")
}

func (d *DownlinkPipeline) fillSilence(p []byte) int {
	for i := range p {
		p[i] = ulawSilence
	}
	return len(p)
}
