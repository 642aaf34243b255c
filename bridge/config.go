// Package bridge implements the per-call audio core between a G.711
// µ-law RTP leg and a PCM16 24 kHz voice-live session: the uplink and
// downlink pipelines, the session controller and the MediaBridge
// assembly that the signalling layer consumes as opaque byte streams.
package bridge

import "time"

// Tunables are the pipeline parameters for one call. Zero values are
// replaced by defaults sized for 20 ms PCMU packets against the
// bursty 24 kHz delta stream.
type Tunables struct {
	// RTPPayloadBytes is the size of one downlink packet, 20 ms of
	// µ-law at 8 kHz.
	RTPPayloadBytes int
	// MinPrebufferPackets must be queued before downlink playback
	// starts, masking producer burstiness (~500 ms).
	MinPrebufferPackets int
	// LowWaterPackets pauses the reader when the queue falls below it
	// mid-response; HighWaterPackets resumes it.
	LowWaterPackets  int
	HighWaterPackets int
	// MaxDeltaChunkBytes splits oversized audio deltas (~200 ms of
	// PCM16 at 24 kHz) before transcoding.
	MaxDeltaChunkBytes int
	// MinUplinkChunkBytes is the uplink send granularity, 100 ms of
	// PCM16 at 24 kHz.
	MinUplinkChunkBytes int
	// ReadFirstTimeout bounds the downlink wait for the first packet
	// of a read; ReadBatchTimeout bounds each additional packet.
	ReadFirstTimeout time.Duration
	ReadBatchTimeout time.Duration
	// SessionReadyTimeout bounds the wait for session.updated during
	// bridge construction.
	SessionReadyTimeout time.Duration
	// WorkBufBytes sizes the downlink packetisation buffer.
	WorkBufBytes int
	// QueueWarnPackets only triggers a warning; the queue is unbounded
	// since dropping packets distorts playback and bursts are bounded
	// by response length.
	QueueWarnPackets int
	// UplinkSendQueue is the capacity of the ordered uplink send
	// mailbox. Chunks beyond it are dropped with a warning.
	UplinkSendQueue int
	// DisableBargeInClear keeps queued playback on speech_started and
	// relies on server-side response truncation alone.
	DisableBargeInClear bool
}

func (t Tunables) WithDefaults() Tunables {
	if t.RTPPayloadBytes == 0 {
		t.RTPPayloadBytes = 160
	}
	if t.MinPrebufferPackets == 0 {
		t.MinPrebufferPackets = 25
	}
	if t.LowWaterPackets == 0 {
		t.LowWaterPackets = 100
	}
	if t.HighWaterPackets == 0 {
		t.HighWaterPackets = 150
	}
	if t.MaxDeltaChunkBytes == 0 {
		t.MaxDeltaChunkBytes = 9600
	}
	if t.MinUplinkChunkBytes == 0 {
		t.MinUplinkChunkBytes = 4800
	}
	if t.ReadFirstTimeout == 0 {
		t.ReadFirstTimeout = 40 * time.Millisecond
	}
	if t.ReadBatchTimeout == 0 {
		t.ReadBatchTimeout = 5 * time.Millisecond
	}
	if t.SessionReadyTimeout == 0 {
		t.SessionReadyTimeout = 10 * time.Second
	}
	if t.WorkBufBytes == 0 {
		t.WorkBufBytes = 8000
	}
	if t.QueueWarnPackets == 0 {
		t.QueueWarnPackets = 800
	}
	if t.UplinkSendQueue == 0 {
		t.UplinkSendQueue = 32
	}
	return t
}
