package audio

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

func clipRes() *bytesResource {
	return &bytesResource{data: []byte("RIFF....WAVE")}
}

func receive(t *testing.T, done <-chan error) (error, bool) {
	t.Helper()
	select {
	case err, ok := <-done:
		return err, ok
	case <-time.After(time.Second):
		t.Fatal("clip did not settle")
		return nil, false
	}
}

func TestMockPlayer_Finish(t *testing.T) {
	mp := DefaultMockPlayer()

	done, err := mp.Play(clipRes())
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if !mp.IsPlaying() {
		t.Error("IsPlaying() = false after Play")
	}
	if string(mp.GetAudioData()) != "RIFF....WAVE" {
		t.Errorf("GetAudioData() = %q", mp.GetAudioData())
	}

	if !mp.Finish() {
		t.Fatal("Finish() = false with a clip playing")
	}
	err, ok := receive(t, done)
	if !ok || err != nil {
		t.Errorf("end = (%v, %v), want (nil, true)", err, ok)
	}
	if _, ok := <-done; ok {
		t.Error("done not closed after the end value")
	}
	if mp.GetState() != StateStopped {
		t.Errorf("state = %s, want stopped", mp.GetState())
	}
	if mp.Finish() {
		t.Error("Finish() = true with nothing playing")
	}
}

func TestMockPlayer_Fail(t *testing.T) {
	mp := DefaultMockPlayer()
	done, _ := mp.Play(clipRes())

	boom := errors.New("boom")
	mp.Fail(boom)
	err, ok := receive(t, done)
	if !ok || !errors.Is(err, boom) {
		t.Errorf("end = (%v, %v), want (boom, true)", err, ok)
	}
}

func TestMockPlayer_StopClosesWithoutValue(t *testing.T) {
	var stops atomic.Int32
	mp := NewMockPlayer(MockCallbacks{OnStop: func() { stops.Add(1) }})
	done, _ := mp.Play(clipRes())

	if err := mp.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, ok := receive(t, done); ok {
		t.Error("stopped clip delivered a value")
	}
	if stops.Load() != 1 {
		t.Errorf("OnStop calls = %d, want 1", stops.Load())
	}

	// Stopping again is a no-op
	_ = mp.Stop()
	if stops.Load() != 1 || mp.GetMetrics().StopCount != 1 {
		t.Errorf("second Stop counted: callbacks=%d metrics=%d", stops.Load(), mp.GetMetrics().StopCount)
	}
}

func TestMockPlayer_PlayReplacesClip(t *testing.T) {
	mp := DefaultMockPlayer()
	first, _ := mp.Play(clipRes())
	second, _ := mp.Play(clipRes())

	if _, ok := receive(t, first); ok {
		t.Error("replaced clip delivered a value")
	}
	mp.Finish()
	if err, ok := receive(t, second); !ok || err != nil {
		t.Errorf("second end = (%v, %v)", err, ok)
	}
	if got := mp.GetMetrics().PlayCount; got != 2 {
		t.Errorf("PlayCount = %d, want 2", got)
	}
}

func TestMockPlayer_PauseResume(t *testing.T) {
	mp := DefaultMockPlayer()

	if err := mp.Pause(); err == nil {
		t.Error("Pause() with nothing playing should fail")
	}

	mp.Play(clipRes())
	if err := mp.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if mp.GetState() != StatePaused || mp.IsPlaying() {
		t.Errorf("state = %s, want paused", mp.GetState())
	}
	if err := mp.Pause(); err == nil {
		t.Error("second Pause() should fail")
	}

	pos := mp.GetPosition()
	time.Sleep(10 * time.Millisecond)
	if mp.GetPosition() != pos {
		t.Error("position advanced while paused")
	}

	if err := mp.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if !mp.IsPlaying() {
		t.Error("IsPlaying() = false after Resume")
	}
	if err := mp.Resume(); err == nil {
		t.Error("Resume() while playing should fail")
	}

	m := mp.GetMetrics()
	if m.PauseCount != 1 || m.ResumeCount != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestMockPlayer_AutoComplete(t *testing.T) {
	mp := DefaultMockPlayer()
	mp.SetAutoComplete(20 * time.Millisecond)

	done, _ := mp.Play(clipRes())
	if err, ok := receive(t, done); !ok || err != nil {
		t.Errorf("end = (%v, %v), want natural end", err, ok)
	}
	if mp.IsPlaying() {
		t.Error("still playing after auto-complete")
	}
}

func TestMockPlayer_AutoCompleteHoldsWhilePaused(t *testing.T) {
	mp := DefaultMockPlayer()
	mp.SetAutoComplete(30 * time.Millisecond)

	done, _ := mp.Play(clipRes())
	mp.Pause()

	select {
	case <-done:
		t.Fatal("paused clip ended")
	case <-time.After(80 * time.Millisecond):
	}

	mp.Resume()
	if err, ok := receive(t, done); !ok || err != nil {
		t.Errorf("end = (%v, %v), want natural end", err, ok)
	}
}

func TestMockPlayer_PlayErrors(t *testing.T) {
	mp := DefaultMockPlayer()

	if _, err := mp.Play(nil); err == nil {
		t.Error("Play(nil) should fail")
	}

	boom := errors.New("device busy")
	mp.SetPlayError(boom)
	if _, err := mp.Play(clipRes()); !errors.Is(err, boom) {
		t.Errorf("Play() error = %v, want %v", err, boom)
	}
	mp.SetPlayError(nil)

	mp.Close()
	if _, err := mp.Play(clipRes()); !errors.Is(err, ErrPlayerClosed) {
		t.Errorf("Play() after Close error = %v, want ErrPlayerClosed", err)
	}
	if mp.GetState() != StateClosed {
		t.Errorf("state = %s, want closed", mp.GetState())
	}
}

func TestMockPlayer_Callbacks(t *testing.T) {
	var played ttypes.Resource
	var paused, resumed, closed bool
	mp := NewMockPlayer(MockCallbacks{
		OnPlay:   func(res ttypes.Resource) { played = res },
		OnPause:  func() { paused = true },
		OnResume: func() { resumed = true },
		OnClose:  func() { closed = true },
	})

	res := clipRes()
	mp.Play(res)
	mp.Pause()
	mp.Resume()
	mp.Close()

	if played != res || !paused || !resumed || !closed {
		t.Errorf("callbacks: play=%v pause=%v resume=%v close=%v", played == res, paused, resumed, closed)
	}
}

func TestMockPlayer_WaitForPlays(t *testing.T) {
	mp := DefaultMockPlayer()
	go func() {
		time.Sleep(5 * time.Millisecond)
		mp.Play(clipRes())
	}()
	if !mp.WaitForPlays(1, time.Second) {
		t.Error("WaitForPlays() timed out")
	}
	if mp.WaitForPlays(2, 10*time.Millisecond) {
		t.Error("WaitForPlays(2) = true after one play")
	}
}

func TestPlayerState_String(t *testing.T) {
	tests := map[PlayerState]string{
		StateStopped:    "stopped",
		StatePlaying:    "playing",
		StatePaused:     "paused",
		StateClosed:     "closed",
		PlayerState(42): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
