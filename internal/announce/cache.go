// Package announce synthesizes and plays the join announcement heard when
// the bot enters a voice channel. Synthesized audio is cached on disk keyed
// by (model, voice, text) so each distinct announcement is paid for once.
package announce

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/discord-voice-mod/internal/logging"
)

// Synthesizer produces audio bytes for text. Implemented by the TTS client;
// tests substitute their own.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Cache is a content-addressed audio cache in front of a Synthesizer.
// Concurrent requests for the same key collapse into one synthesis call.
type Cache struct {
	dir   string
	model string
	voice string
	synth Synthesizer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewCache(dir, model, voice string, synth Synthesizer) (*Cache, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "voice-mod-tts")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create TTS cache dir %s: %w", dir, err)
	}
	return &Cache{
		dir:   dir,
		model: model,
		voice: voice,
		synth: synth,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (c *Cache) path(text string) string {
	digest := sha256.Sum256([]byte(c.model + ":" + c.voice + ":" + text))
	return filepath.Join(c.dir, hex.EncodeToString(digest[:])+".audio")
}

func (c *Cache) lockFor(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.locks[key]
	if l == nil {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// Get returns the cached audio for text, synthesizing and caching it on a
// miss. A failed cache write is logged but the synthesized bytes are still
// returned.
func (c *Cache) Get(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("empty announcement text")
	}
	path := c.path(text)
	if audio, err := os.ReadFile(path); err == nil && len(audio) > 0 {
		return audio, nil
	}

	lock := c.lockFor(filepath.Base(path))
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have filled the entry while we waited.
	if audio, err := os.ReadFile(path); err == nil && len(audio) > 0 {
		return audio, nil
	}

	audio, err := c.synth.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("synthesizer returned no audio")
	}
	if err := saveFileAtomic(path, audio, 0o644); err != nil {
		logging.Warnw("failed to cache TTS audio", "path", path, "err", err)
	}
	return audio, nil
}

// saveFileAtomic writes data to path by writing a tmp file in the same
// directory, fsyncing, closing, and renaming into place.
func saveFileAtomic(path string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// SniffFormat identifies the audio container from its leading bytes so
// playback can pick the right decoder. Defaults to wav.
func SniffFormat(audio []byte) string {
	switch {
	case bytes.HasPrefix(audio, []byte("RIFF")):
		return "wav"
	case bytes.HasPrefix(audio, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(audio, []byte("ID3")):
		return "mp3"
	case len(audio) >= 2 && audio[0] == 0xFF && audio[1]&0xE0 == 0xE0:
		return "mp3"
	case bytes.HasPrefix(audio, []byte("fLaC")):
		return "flac"
	}
	return "wav"
}
