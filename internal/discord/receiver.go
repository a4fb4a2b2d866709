package discord

import (
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/hraban/opus"

	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/voice"
)

// maxFrameSamples covers a 60ms frame at 48kHz, the largest opus allows.
const maxFrameSamples = 48000 * 60 / 1000

// receiver drains a voice connection's OpusRecv channel into a buffer pool.
// Each SSRC gets its own decoder; opus decoding is stateful and mixing
// streams through one decoder corrupts all of them. Frames whose SSRC has no
// known user yet are dropped.
type receiver struct {
	vc   *discordgo.VoiceConnection
	pool *voice.BufferPool

	mu       sync.Mutex
	decoders map[uint32]*opus.Decoder
	ssrcMap  map[uint32]string
	unknown  map[uint32]struct{}
	done     chan struct{}
	wg       sync.WaitGroup
}

func newReceiver(vc *discordgo.VoiceConnection, pool *voice.BufferPool) *receiver {
	return &receiver{
		vc:       vc,
		pool:     pool,
		decoders: make(map[uint32]*opus.Decoder),
		ssrcMap:  make(map[uint32]string),
		unknown:  make(map[uint32]struct{}),
		done:     make(chan struct{}),
	}
}

func (r *receiver) start() {
	r.vc.AddHandler(func(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
		r.handleSpeakingUpdate(su)
	})
	if r.vc.OpusRecv == nil {
		logging.Warnw("voice connection has no receive channel", "guild_id", r.vc.GuildID)
		return
	}
	r.wg.Add(1)
	go r.recvLoop()
}

func (r *receiver) stop() {
	close(r.done)
	r.wg.Wait()
}

func (r *receiver) handleSpeakingUpdate(su *discordgo.VoiceSpeakingUpdate) {
	if su == nil || su.UserID == "" {
		return
	}
	r.mu.Lock()
	r.ssrcMap[uint32(su.SSRC)] = su.UserID
	delete(r.unknown, uint32(su.SSRC))
	r.mu.Unlock()
	logging.Debugw("speaking update", "ssrc", su.SSRC, "user_id", su.UserID)
}

func (r *receiver) recvLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case pkt, ok := <-r.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil || len(pkt.Opus) == 0 {
				continue
			}
			r.handlePacket(pkt)
		}
	}
}

func (r *receiver) handlePacket(pkt *discordgo.Packet) {
	ssrc := uint32(pkt.SSRC)

	r.mu.Lock()
	userID := r.ssrcMap[ssrc]
	if userID == "" {
		if _, logged := r.unknown[ssrc]; !logged {
			r.unknown[ssrc] = struct{}{}
			logging.Debugw("dropping audio for unmapped ssrc", "ssrc", ssrc)
		}
		r.mu.Unlock()
		return
	}
	dec := r.decoders[ssrc]
	if dec == nil {
		var err error
		dec, err = opus.NewDecoder(voice.SampleRate, voice.Channels)
		if err != nil {
			r.mu.Unlock()
			logging.Errorw("failed to create opus decoder", "ssrc", ssrc, "err", err)
			return
		}
		r.decoders[ssrc] = dec
	}
	r.mu.Unlock()

	pcm := make([]int16, maxFrameSamples)
	n, err := dec.Decode(pkt.Opus, pcm)
	if err != nil {
		logging.Warnw("opus decode error", "ssrc", ssrc, "err", err)
		return
	}
	if n == 0 {
		return
	}

	frame := make([]byte, n*voice.BytesPerSample)
	for i, s := range pcm[:n] {
		frame[2*i] = byte(s)
		frame[2*i+1] = byte(s >> 8)
	}
	r.pool.WriteFrame(userID, frame)
}
