package settings

import (
	"reflect"
	"testing"
	"time"
)

func TestFromRawDefaults(t *testing.T) {
	s := FromRaw(map[string]string{})
	if s.Enabled {
		t.Fatal("moderation enabled by default")
	}
	if s.Listen != DefaultListen {
		t.Fatalf("Listen = %v, want %v", s.Listen, DefaultListen)
	}
	if s.Idle != DefaultIdle {
		t.Fatalf("Idle = %v, want %v", s.Idle, DefaultIdle)
	}
	if !reflect.DeepEqual(s.Actions, []string{"auto"}) {
		t.Fatalf("Actions = %v, want [auto]", s.Actions)
	}
	if len(s.ChannelIDs) != 0 || len(s.CategoryIDs) != 0 {
		t.Fatal("expected empty channel and category lists")
	}
}

func TestFromRawBooleans(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "On", " true "} {
		if s := FromRaw(map[string]string{KeyEnabled: v}); !s.Enabled {
			t.Errorf("value %q not treated as true", v)
		}
	}
	for _, v := range []string{"", "0", "false", "no", "off", "garbage"} {
		if s := FromRaw(map[string]string{KeyEnabled: v}); s.Enabled {
			t.Errorf("value %q treated as true", v)
		}
	}
}

func TestFromRawDurations(t *testing.T) {
	cases := []struct {
		value string
		want  time.Duration
	}{
		{"2m", 2 * time.Minute},
		{"1h30m", 90 * time.Minute},
		{"90", 90 * time.Second},
		{"-5m", DefaultListen},
		{"0", DefaultListen},
		{"soon", DefaultListen},
		{"", DefaultListen},
	}
	for _, tc := range cases {
		s := FromRaw(map[string]string{KeyListenDuration: tc.value})
		if s.Listen != tc.want {
			t.Errorf("listen duration %q = %v, want %v", tc.value, s.Listen, tc.want)
		}
	}
}

func TestFromRawChannelLists(t *testing.T) {
	s := FromRaw(map[string]string{
		KeyChannels:   `["111", "222", "not-a-snowflake"]`,
		KeyCategories: "333, 444,,555x",
	})
	if !reflect.DeepEqual(s.ChannelIDs, []string{"111", "222"}) {
		t.Fatalf("ChannelIDs = %v", s.ChannelIDs)
	}
	if !reflect.DeepEqual(s.CategoryIDs, []string{"333", "444"}) {
		t.Fatalf("CategoryIDs = %v", s.CategoryIDs)
	}
}

func TestFromRawActions(t *testing.T) {
	s := FromRaw(map[string]string{KeyDetectionAction: "timeout:10m, warn:language"})
	if !reflect.DeepEqual(s.Actions, []string{"timeout:10m", "warn:language"}) {
		t.Fatalf("Actions = %v", s.Actions)
	}
	s = FromRaw(map[string]string{KeyDetectionAction: `["auto"]`})
	if !reflect.DeepEqual(s.Actions, []string{"auto"}) {
		t.Fatalf("Actions = %v", s.Actions)
	}
}

func TestFromRawLogChannelFallback(t *testing.T) {
	s := FromRaw(map[string]string{KeyLogChannel: "123", KeyMonitorChannel: "456"})
	if s.LogChannelID != "123" {
		t.Fatalf("LogChannelID = %q, want dedicated channel", s.LogChannelID)
	}
	s = FromRaw(map[string]string{KeyMonitorChannel: "456"})
	if s.LogChannelID != "456" {
		t.Fatalf("LogChannelID = %q, want monitor fallback", s.LogChannelID)
	}
	s = FromRaw(map[string]string{})
	if s.LogChannelID != "" {
		t.Fatalf("LogChannelID = %q, want empty", s.LogChannelID)
	}
}
