package discord

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

// buildTestWAV assembles a minimal RIFF/WAVE container around samples.
func buildTestWAV(sampleRate, channels, bits int, samples []int16) []byte {
	pcm := new(bytes.Buffer)
	for _, s := range samples {
		binary.Write(pcm, binary.LittleEndian, s)
	}
	body := new(bytes.Buffer)
	body.WriteString("WAVE")
	body.WriteString("fmt ")
	binary.Write(body, binary.LittleEndian, uint32(16))
	binary.Write(body, binary.LittleEndian, uint16(1))
	binary.Write(body, binary.LittleEndian, uint16(channels))
	binary.Write(body, binary.LittleEndian, uint32(sampleRate))
	binary.Write(body, binary.LittleEndian, uint32(sampleRate*channels*bits/8))
	binary.Write(body, binary.LittleEndian, uint16(channels*bits/8))
	binary.Write(body, binary.LittleEndian, uint16(bits))
	body.WriteString("data")
	binary.Write(body, binary.LittleEndian, uint32(pcm.Len()))
	body.Write(pcm.Bytes())

	out := new(bytes.Buffer)
	out.WriteString("RIFF")
	binary.Write(out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestParseWAV(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768}
	data := buildTestWAV(48000, 1, 16, samples)

	wav, err := parseWAV(data)
	if err != nil {
		t.Fatalf("parseWAV: %v", err)
	}
	if wav.sampleRate != 48000 {
		t.Fatalf("sampleRate = %d", wav.sampleRate)
	}
	if wav.channels != 1 {
		t.Fatalf("channels = %d", wav.channels)
	}
	if len(wav.samples) != len(samples) {
		t.Fatalf("samples = %d, want %d", len(wav.samples), len(samples))
	}
	for i, s := range samples {
		if wav.samples[i] != s {
			t.Fatalf("sample %d = %d, want %d", i, wav.samples[i], s)
		}
	}
}

func TestParseWAVRejectsBadInput(t *testing.T) {
	if _, err := parseWAV([]byte("not audio at all, definitely not forty-four bytes of it")); err == nil {
		t.Fatal("expected error for non-RIFF data")
	}
	if _, err := parseWAV(nil); err == nil {
		t.Fatal("expected error for empty data")
	}
	if _, err := parseWAV(buildTestWAV(48000, 1, 8, []int16{1, 2})); err == nil {
		t.Fatal("expected error for 8-bit audio")
	}
}

func TestParseActionDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"10m", 10 * time.Minute},
		{"2h", 2 * time.Hour},
		{"1d", 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"1mo", 30 * 24 * time.Hour},
		{"1.5h", 90 * time.Minute},
		{"15", 15 * time.Minute}, // bare numbers are minutes
		{" 10M ", 10 * time.Minute},
	}
	for _, tc := range cases {
		got, err := parseActionDuration(tc.raw)
		if err != nil {
			t.Errorf("%q: unexpected error %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q = %v, want %v", tc.raw, got, tc.want)
		}
	}

	for _, raw := range []string{"", "abc", "-5m", "0s"} {
		if _, err := parseActionDuration(raw); err == nil {
			t.Errorf("%q: expected error", raw)
		}
	}
}
