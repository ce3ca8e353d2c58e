package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/wavedma/wavedma"
	"github.com/wavedma/wavedma/arena"
	"github.com/wavedma/wavedma/config"
	"github.com/wavedma/wavedma/wave"
	"golang.org/x/exp/slog"
)

const blink = `
Waves:
  - Name: blink
    Pulses:
      - On: [4]
        Delay: 10
      - Off: [4]
        Delay: 10
  - Name: tail
    Pulses:
      - On: [5, 6]
        Delay: 30
`

func openSim(t *testing.T) *wavedma.Subsystem {
	logger := slog.New(slog.NewJSONHandler(io.Discard))
	s, err := wavedma.Open(logger, wavedma.Options{TickMicros: 10, BufferMillis: 20, Simulate: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestPlayProgram(t *testing.T) {
	s := openSim(t)

	program, err := config.ParseProgram([]byte(blink + `
Chain:
  - Op: loop
  - Op: play
    Wave: blink
  - Op: end
    Count: 3
  - Op: play
    Wave: tail
`))
	require.NoError(t, err)

	err = playProgram(s, program, false, nil)
	require.NoError(t, err)
	require.False(t, s.Waves().Busy())
	require.Equal(t, uint32(1<<5|1<<6), s.Simulator().Level())
}

func TestPlayProgramInterrupted(t *testing.T) {
	s := openSim(t)

	program, err := config.ParseProgram([]byte(blink + "Mode: repeat\n"))
	require.NoError(t, err)

	interrupt := make(chan os.Signal, 1)
	interrupt <- os.Interrupt
	err = playProgram(s, program, false, interrupt)
	require.NoError(t, err)
	require.False(t, s.Waves().Busy())
}

func TestDumpProgram(t *testing.T) {
	s := openSim(t)

	program, err := config.ParseProgram([]byte(blink))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, dumpProgram(&out, s, program))

	text := out.String()
	require.Contains(t, text, `wave "blink" id 0:`)
	require.Contains(t, text, `wave "tail" id 1:`)

	blocks, err := s.Waves().Dump(0)
	require.NoError(t, err)
	require.Contains(t, text, fmt.Sprintf("crc %04x\n", fingerprint(blocks)))
}

func TestDumpUnknownWave(t *testing.T) {
	s := openSim(t)

	program, err := config.ParseProgram([]byte(blink))
	require.NoError(t, err)
	ids, err := createWaves(s, program)
	require.NoError(t, err)

	var out bytes.Buffer
	err = dumpWave(&out, s, "missing", 9)
	require.True(t, errors.Is(err, wave.ErrBadWaveID))

	require.NoError(t, s.Waves().Delete(ids["blink"]))
	err = dumpWave(&out, s, "blink", ids["blink"])
	require.True(t, errors.Is(err, wave.ErrBadWaveID))
	require.Zero(t, out.Len())
}

func TestFingerprint(t *testing.T) {
	require.Equal(t, uint16(0xffff), fingerprint(nil))

	a := fingerprint([]arena.ControlBlock{{Info: 1, Next: 2}})
	b := fingerprint([]arena.ControlBlock{{Info: 1, Next: 3}})
	require.NotEqual(t, a, b)
	require.Equal(t, a, fingerprint([]arena.ControlBlock{{Info: 1, Next: 2}}))
}

func request(t *testing.T, mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestServer(t *testing.T) {
	s := openSim(t)
	mux := BuildMux(s)

	w := request(t, mux, http.MethodPost, "/waves", `{"Name": "a", "Pulses": [{"On": [4], "Delay": 10}, {"Off": [4], "Delay": 10}]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.JSONEq(t, `{"Id": 0}`, w.Body.String())

	w = request(t, mux, http.MethodPost, "/waves", `{"Name": "b", "Pulses": [{"On": [40], "Delay": 10}]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = request(t, mux, http.MethodGet, "/waves/0", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"Deleted":false`)

	require.Equal(t, http.StatusNotFound, request(t, mux, http.MethodGet, "/waves/7", "").Code)
	require.Equal(t, http.StatusNotFound, request(t, mux, http.MethodGet, "/waves/x", "").Code)
	require.Equal(t, http.StatusBadRequest, request(t, mux, http.MethodPost, "/waves/0/play?mode=bogus", "").Code)

	w = request(t, mux, http.MethodPost, "/waves/0/play?mode=repeat", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = request(t, mux, http.MethodGet, "/busy", "")
	require.Contains(t, w.Body.String(), `"Busy":true`)

	w = request(t, mux, http.MethodPost, "/chain", `[{"Op": "loop"}, {"Op": "play", "Wave": "0"}, {"Op": "end", "Count": 300}]`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"Counters":1`)

	require.Equal(t, http.StatusNotFound, request(t, mux, http.MethodPost, "/chain", `[{"Op": "play", "Wave": "9"}]`).Code)
	require.Equal(t, http.StatusBadRequest, request(t, mux, http.MethodPost, "/chain", `[{"Op": "jump"}]`).Code)

	require.Equal(t, http.StatusNoContent, request(t, mux, http.MethodPost, "/stop", "").Code)
	w = request(t, mux, http.MethodGet, "/busy", "")
	require.JSONEq(t, `{"Busy": false, "CurrentCB": -1}`, w.Body.String())

	w = request(t, mux, http.MethodGet, "/stats?detailed=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"Entries"`)

	require.Equal(t, http.StatusNoContent, request(t, mux, http.MethodDelete, "/waves/0", "").Code)
	require.Equal(t, http.StatusNotFound, request(t, mux, http.MethodDelete, "/waves/0", "").Code)
}
