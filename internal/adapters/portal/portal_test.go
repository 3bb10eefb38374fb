package portal

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/veilcap/veilcap/internal/domain"
	"github.com/veilcap/veilcap/internal/ports"
	"github.com/veilcap/veilcap/pkg/log"
)

func TestClassifyEvent(t *testing.T) {
	tests := []struct {
		name string
		line string
		side ports.DeviceSide
		ok   bool
	}{
		{"sink change", "Event 'change' on sink #48", ports.DeviceOutput, true},
		{"source removal", "Event 'remove' on source #12", ports.DeviceInput, true},
		{"new sink", "Event 'new' on sink #3", ports.DeviceOutput, true},
		{"server default switch", "Event 'change' on server #0", ports.DeviceOutput, true},
		{"client noise", "Event 'change' on client #901", 0, false},
		{"sink input noise", "Event 'new' on sink-input #77", 0, false},
		{"unrelated", "something else entirely", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side, ok := classifyEvent(tt.line)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && side != tt.side {
				t.Errorf("side = %v, want %v", side, tt.side)
			}
		})
	}
}

func TestClassifyEventSinkInputNotSink(t *testing.T) {
	// "on sink-input" must not match the " on sink" branch.
	if _, ok := classifyEvent("Event 'change' on sink-input #5"); ok {
		t.Error("sink-input misclassified as sink")
	}
}

func TestParseStreams(t *testing.T) {
	results := map[string]dbus.Variant{
		"streams": dbus.MakeVariant([]any{
			[]any{
				uint32(42),
				map[string]dbus.Variant{
					"position": dbus.MakeVariant([]any{int32(0), int32(0)}),
					"size":     dbus.MakeVariant([]any{int32(1920), int32(1080)}),
				},
			},
			[]any{
				uint32(43),
				map[string]dbus.Variant{
					"position": dbus.MakeVariant([]any{int32(1920), int32(0)}),
					"size":     dbus.MakeVariant([]any{int32(1280), int32(1024)}),
				},
			},
		}),
	}

	streams := parseStreams(results)
	if len(streams) != 2 {
		t.Fatalf("parsed %d streams, want 2", len(streams))
	}
	if streams[0].nodeID != 42 || streams[0].size != [2]int32{1920, 1080} {
		t.Errorf("stream 0 = %+v", streams[0])
	}
	if streams[1].position != [2]int32{1920, 0} {
		t.Errorf("stream 1 position = %v", streams[1].position)
	}
}

func TestParseStreamsRejectsBadEntries(t *testing.T) {
	results := map[string]dbus.Variant{
		"streams": dbus.MakeVariant([]any{
			[]any{uint32(7)}, // too short
			[]any{
				uint32(8),
				map[string]dbus.Variant{
					"size": dbus.MakeVariant([]any{int32(0), int32(0)}),
				},
			}, // zero size
		}),
	}
	if streams := parseStreams(results); len(streams) != 0 {
		t.Errorf("parsed %d streams from invalid input", len(streams))
	}
}

func TestParseStreamsMissingKey(t *testing.T) {
	if streams := parseStreams(map[string]dbus.Variant{}); streams != nil {
		t.Errorf("streams = %v, want nil", streams)
	}
}

func TestSenderToken(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{":1.42", "1_42"},
		{":1.101", "1_101"},
		{":2.0", "2_0"},
	}
	for _, tt := range tests {
		if got := senderToken(tt.name); got != tt.want {
			t.Errorf("senderToken(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParseResponse(t *testing.T) {
	results := map[string]dbus.Variant{"session_handle": dbus.MakeVariant("/h")}
	sig := &dbus.Signal{Body: []any{responseSuccess, results}}

	status, got, err := parseResponse(sig)
	if err != nil {
		t.Fatal(err)
	}
	if status != responseSuccess {
		t.Errorf("status = %d", status)
	}
	if _, ok := got["session_handle"]; !ok {
		t.Errorf("results = %v", got)
	}
}

func TestParseResponseMalformed(t *testing.T) {
	tests := []struct {
		name string
		body []any
	}{
		{"short body", []any{responseSuccess}},
		{"status not uint32", []any{"0", map[string]dbus.Variant{}}},
		{"results not a map", []any{responseSuccess, "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseResponse(&dbus.Signal{Body: tt.body})
			if !errors.Is(err, errUnexpectedResponse) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestRefusalError(t *testing.T) {
	if msg := refusalError("Start", responseCancelled).Error(); !strings.Contains(msg, "cancelled by user") {
		t.Errorf("cancel message = %q", msg)
	}
	if msg := refusalError("Start", 2).Error(); !strings.Contains(msg, "status 2") {
		t.Errorf("refusal message = %q", msg)
	}
}

func TestSourceClockEpochSharedAcrossStreams(t *testing.T) {
	s := NewSource(48000, log.NewNoopLogger())
	first := s.clockEpoch()
	time.Sleep(5 * time.Millisecond)
	if second := s.clockEpoch(); !second.Equal(first) {
		t.Errorf("epoch moved: %v -> %v", first, second)
	}
}

type recordingHandler struct {
	mu     sync.Mutex
	events []domain.StreamEvent
}

func (h *recordingHandler) HandleEvent(ev domain.StreamEvent) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

// A stream opened after a restart stamps samples against the source
// epoch, not its own start time, so track writers never see the clock
// rewind.
func TestPumpAudioStampsAgainstEpoch(t *testing.T) {
	h := &recordingHandler{}
	st := &stream{
		handler: h,
		logger:  log.NewNoopLogger(),
		epoch:   time.Now().Add(-time.Minute),
		done:    make(chan struct{}),
	}
	close(st.done) // silence the exit report when the feed drains

	chunk := make([]byte, 48000*2*2*audioChunkMillis/1000)
	st.wg.Add(1)
	st.pumpAudio(nil, bytes.NewReader(chunk), domain.AudioSystem, 48000)

	if len(h.events) != 1 {
		t.Fatalf("events = %d, want 1", len(h.events))
	}
	if pts := h.events[0].Audio.PTS; pts < time.Minute {
		t.Errorf("PTS = %v, want at least the epoch offset", pts)
	}
}

func TestPumpVideoStampsAgainstEpoch(t *testing.T) {
	h := &recordingHandler{}
	st := &stream{
		handler: h,
		logger:  log.NewNoopLogger(),
		epoch:   time.Now().Add(-time.Minute),
		done:    make(chan struct{}),
	}
	close(st.done)

	frame := make([]byte, 4*4+2*2*2) // one 4x4 I420 frame
	st.wg.Add(1)
	st.pumpVideo(nil, bytes.NewReader(frame), 4, 4)

	if len(h.events) != 1 {
		t.Fatalf("events = %d, want 1", len(h.events))
	}
	ev := h.events[0]
	if ev.Kind != domain.EventVideoFrame {
		t.Fatalf("kind = %v", ev.Kind)
	}
	if ev.Video.PTS < time.Minute {
		t.Errorf("PTS = %v, want at least the epoch offset", ev.Video.PTS)
	}
	if got := len(ev.Video.Buffer.Planes); got != 3 {
		t.Errorf("planes = %d", got)
	}
}

func TestCastSessionDisplays(t *testing.T) {
	sess := &castSession{streams: []portalStream{
		{nodeID: 42, position: [2]int32{0, 0}, size: [2]int32{1920, 1080}},
		{nodeID: 43, position: [2]int32{1920, 0}, size: [2]int32{1280, 1024}},
	}}
	displays := sess.displays()
	if len(displays) != 2 {
		t.Fatalf("got %d displays", len(displays))
	}
	d := displays[1]
	if uint32(d.ID) != 43 || d.Width != 1280 || d.Height != 1024 {
		t.Errorf("display = %+v", d)
	}
	if d.Bounds.X != 1920 || d.Bounds.W != 1280 {
		t.Errorf("bounds = %+v", d.Bounds)
	}
}
