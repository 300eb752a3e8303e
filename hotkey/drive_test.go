package hotkey

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder rejects commands that do not fit its state, like the controller.
type recorder struct {
	mu        sync.Mutex
	recording bool
	calls     []string
	ch        chan string
}

func newRecorder() *recorder { return &recorder{ch: make(chan string, 8)} }

func (r *recorder) Toggle() bool {
	r.mu.Lock()
	r.recording = !r.recording
	started := r.recording
	r.mu.Unlock()
	if started {
		r.add("start")
	} else {
		r.add("stop")
	}
	return started
}

func (r *recorder) Stop() {
	r.mu.Lock()
	ok := r.recording
	r.recording = false
	r.mu.Unlock()
	if ok {
		r.add("stop")
	} else {
		r.add("stop:rejected")
	}
}

// stopElsewhere ends the recording from another surface.
func (r *recorder) stopElsewhere() {
	r.mu.Lock()
	r.recording = false
	r.mu.Unlock()
}

func (r *recorder) isRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
	r.ch <- s
}

func (r *recorder) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-r.ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for recorder call")
	}
	return ""
}

func (r *recorder) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case s := <-r.ch:
		t.Fatalf("unexpected %s", s)
	case <-time.After(d):
	}
}

func drive(t *testing.T, longPress time.Duration) (*FakeHotkey, *recorder, func() error) {
	t.Helper()
	fk := NewFake()
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Drive(ctx, fk, rec, longPress) }()
	return fk, rec, func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(time.Second):
			t.Fatal("Drive did not return after cancel")
			return nil
		}
	}
}

func TestDriveLongPress(t *testing.T) {
	threshold := 50 * time.Millisecond
	fk, rec, stop := drive(t, threshold)

	fk.SimKeydown()
	assert.Equal(t, "start", rec.next(t))
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	assert.Equal(t, "stop", rec.next(t))

	assert.ErrorIs(t, stop(), context.Canceled)
}

func TestDriveShortTap(t *testing.T) {
	fk, rec, stop := drive(t, 200*time.Millisecond)

	fk.SimKeydown()
	assert.Equal(t, "start", rec.next(t))
	fk.SimKeyup()
	rec.quiet(t, 50*time.Millisecond)

	fk.SimKeydown()
	fk.SimKeyup()
	assert.Equal(t, "stop", rec.next(t))

	stop()
}

func TestDriveMultipleCycles(t *testing.T) {
	threshold := 50 * time.Millisecond
	fk, rec, stop := drive(t, threshold)

	// hold
	fk.SimKeydown()
	rec.next(t)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	rec.next(t)

	// tap, tap
	fk.SimKeydown()
	rec.next(t)
	fk.SimKeyup()
	time.Sleep(10 * time.Millisecond)
	fk.SimKeydown()
	fk.SimKeyup()
	rec.next(t)

	stop()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"start", "stop", "start", "stop"}, rec.calls)
}

func TestDriveCancelWhileHeld(t *testing.T) {
	fk, rec, stop := drive(t, time.Hour)
	fk.SimKeydown()
	require.Equal(t, "start", rec.next(t))
	assert.ErrorIs(t, stop(), context.Canceled)
}

func TestDriveTapAfterExternalStop(t *testing.T) {
	fk, rec, stop := drive(t, 200*time.Millisecond)

	fk.SimKeydown()
	fk.SimKeyup()
	assert.Equal(t, "start", rec.next(t))

	rec.stopElsewhere()

	fk.SimKeydown()
	fk.SimKeyup()
	assert.Equal(t, "start", rec.next(t))
	assert.True(t, rec.isRecording())

	stop()
}

func TestDriveTapStopsExternalRecording(t *testing.T) {
	fk, rec, stop := drive(t, 200*time.Millisecond)
	rec.mu.Lock()
	rec.recording = true
	rec.mu.Unlock()

	fk.SimKeydown()
	fk.SimKeyup()
	assert.Equal(t, "stop", rec.next(t))
	assert.False(t, rec.isRecording())

	stop()
}

func TestDriveHoldWhileRecordingOnlyStops(t *testing.T) {
	threshold := 30 * time.Millisecond
	fk, rec, stop := drive(t, threshold)
	rec.mu.Lock()
	rec.recording = true
	rec.mu.Unlock()

	fk.SimKeydown()
	assert.Equal(t, "stop", rec.next(t))
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	rec.quiet(t, 50*time.Millisecond)

	stop()
}
