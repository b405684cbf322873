//go:build headless

package audiosink

import "testing"

func TestAudioSinkRecordsFrames(t *testing.T) {
	s, err := NewAudioSink(DefaultConfig())
	if err != nil {
		t.Fatalf("NewAudioSink: %v", err)
	}
	if !s.IsStarted() {
		t.Fatalf("headless sink should report started")
	}

	frames := []float32{0.1, -0.1, 0.2, -0.2}
	if dropped := s.Write(frames); dropped != 0 {
		t.Fatalf("Write dropped = %d, want 0", dropped)
	}

	got := s.LastFrame()
	if len(got) != len(frames) {
		t.Fatalf("LastFrame len = %d, want %d", len(got), len(frames))
	}
	for i := range frames {
		if got[i] != frames[i] {
			t.Fatalf("LastFrame[%d] = %v, want %v", i, got[i], frames[i])
		}
	}

	if s.FramesWritten() != uint64(len(frames)/DefaultConfig().Channels) {
		t.Fatalf("FramesWritten = %d, want %d", s.FramesWritten(), len(frames)/DefaultConfig().Channels)
	}
}

func TestAudioSinkClose(t *testing.T) {
	s, _ := NewAudioSink(DefaultConfig())
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
