package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/musicclock-go"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

func newTestServer(t *testing.T, load func() (*songmap.SongMaps, error)) (*httptest.Server, *musicclock.Player) {
	t.Helper()
	pl, err := musicclock.NewPlayer(48000, songmap.NewDefaultSongMaps(960),
		musicclock.WithBackend("headless"), musicclock.WithMetronome(false))
	require.NoError(t, err)
	if load == nil {
		load = func() (*songmap.SongMaps, error) { return songmap.NewDefaultSongMaps(960), nil }
	}
	s := newServer(pl, load, slog.Default())
	ts := httptest.NewServer(s.router())
	t.Cleanup(func() {
		ts.Close()
		_ = pl.Stop()
	})
	return ts, pl
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestServeClock(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/clock")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got clockResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "stopped", got.Transport)
	assert.Equal(t, "audio-render", got.Diagnostics.Method)
	require.Len(t, got.Timebases, int(musicclock.NumTimebases))
	assert.Equal(t, "raw", got.Timebases[0].Timebase)
	assert.Equal(t, "video", got.Timebases[3].Timebase)
}

func TestServeTimebase(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/clock/player")
	require.NoError(t, err)
	var snap musicclock.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "player", snap.Timebase)

	resp, err = http.Get(ts.URL + "/clock/sundial")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeSeek(t *testing.T) {
	ts, pl := newTestServer(t, nil)

	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/seek", "{").StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/seek", "{}").StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/seek", `{"tick":-5}`).StatusCode)

	resp, err := http.Get(ts.URL + "/seek")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	require.NoError(t, pl.Play())
	assert.Equal(t, http.StatusNoContent, post(t, ts.URL+"/seek", `{"tick":19200}`).StatusCode)
	assert.Eventually(t, func() bool { return pl.CurrentTick() >= 19200 }, 2*time.Second, 5*time.Millisecond)
}

func TestServePauseAndPlay(t *testing.T) {
	ts, pl := newTestServer(t, nil)
	require.NoError(t, pl.Play())

	assert.Equal(t, http.StatusNoContent, post(t, ts.URL+"/pause", "").StatusCode)
	assert.Eventually(t, func() bool { return pl.TransportState().String() == "paused" }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, http.StatusNoContent, post(t, ts.URL+"/play", "").StatusCode)
	assert.Eventually(t, func() bool { return pl.TransportState().String() == "playing" }, 2*time.Second, 5*time.Millisecond)
}

func TestServeReloadIsDebounced(t *testing.T) {
	var loads atomic.Int32
	ts, _ := newTestServer(t, func() (*songmap.SongMaps, error) {
		loads.Add(1)
		return songmap.NewDefaultSongMaps(960), nil
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusAccepted, post(t, ts.URL+"/maps/reload", "").StatusCode)
	}
	assert.Eventually(t, func() bool { return loads.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), loads.Load())
}
