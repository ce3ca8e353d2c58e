package main

import (
	"io"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/wavedma/wavedma"
	"github.com/wavedma/wavedma/config"
	"github.com/wavedma/wavedma/wave"
	yml "gopkg.in/yaml.v2"
)

// BuildMux exposes the subsystem over HTTP. Request bodies are YAML or JSON, responses are JSON.
//
//	GET    /stats             subsystem statistics, ?detailed=true lists the registry
//	GET    /busy              whether the secondary channel is transmitting
//	POST   /waves             compile a wave from a Pulses list
//	GET    /waves/{id}        wave placement
//	DELETE /waves/{id}        delete a wave
//	POST   /waves/{id}/play   play a wave, ?mode=repeat repeats it
//	POST   /chain             submit a chain of ops whose Wave fields hold ids
//	POST   /stop              stop the secondary channel
func BuildMux(s *wavedma.Subsystem) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Get("/stats", statsHandler(s))
	root.Get("/busy", busyHandler(s))
	root.Post("/waves", createHandler(s))
	root.Get("/waves/{id}", infoHandler(s))
	root.Delete("/waves/{id}", deleteHandler(s))
	root.Post("/waves/{id}/play", playHandler(s))
	root.Post("/chain", chainHandler(s))
	root.Post("/stop", stopHandler(s))
	return root
}

func status(err error) int {
	switch {
	case errors.Is(err, wave.ErrBadWaveID):
		return http.StatusNotFound
	case errors.Is(err, wave.ErrNoSpace):
		return http.StatusInsufficientStorage
	}
	return http.StatusBadRequest
}

func fail(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), status(err))
}

func reply(w http.ResponseWriter, code int, writer *jwriter.Writer) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(writer.Bytes())
}

func decode(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	err := yml.NewDecoder(r.Body).Decode(out)
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "could not decode request body")
	}
	return nil
}

func waveID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Mark(errors.Newf("wave id %q is not a number", raw), wave.ErrBadWaveID)
	}
	return id, nil
}

func statsHandler(s *wavedma.Subsystem) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detailed := r.URL.Query().Get("detailed") == "true"
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, s.BuildStatsString(detailed))
	}
}

func busyHandler(s *wavedma.Subsystem) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writer := jwriter.NewWriter()
		obj := writer.Object()
		obj.Name("Busy").Bool(s.Waves().Busy())
		obj.Name("CurrentCB").Int(s.Waves().CurrentCB())
		obj.End()
		reply(w, http.StatusOK, &writer)
	}
}

func createHandler(s *wavedma.Subsystem) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var spec config.WaveSpec
		err := decode(r, &spec)
		if err != nil {
			fail(w, err)
			return
		}

		train, err := spec.Train()
		if err != nil {
			fail(w, err)
			return
		}

		waves := s.Waves()
		waves.AddNew()
		_, err = waves.AddGeneric(train)
		if err != nil {
			fail(w, err)
			return
		}

		id, err := waves.Create()
		if err != nil {
			fail(w, err)
			return
		}

		writer := jwriter.NewWriter()
		obj := writer.Object()
		obj.Name("Id").Int(id)
		obj.End()
		reply(w, http.StatusCreated, &writer)
	}
}

func infoHandler(s *wavedma.Subsystem) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := waveID(r)
		if err != nil {
			fail(w, err)
			return
		}

		info, ok := s.Waves().Info(id)
		if !ok {
			fail(w, errors.Wrapf(wave.ErrBadWaveID, "wave %d", id))
			return
		}

		writer := jwriter.NewWriter()
		obj := writer.Object()
		obj.Name("Id").Int(info.ID)
		obj.Name("Deleted").Bool(info.Deleted)
		obj.Name("BottomCB").Int(info.BottomCB)
		obj.Name("TopCB").Int(info.TopCB)
		obj.Name("BottomOOL").Int(info.BottomOOL)
		obj.Name("TopOOL").Int(info.TopOOL)
		obj.Name("NumCB").Int(info.NumCB)
		obj.Name("NumBottomOOL").Int(info.NumBottomOOL)
		obj.Name("NumTopOOL").Int(info.NumTopOOL)
		obj.End()
		reply(w, http.StatusOK, &writer)
	}
}

func deleteHandler(s *wavedma.Subsystem) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := waveID(r)
		if err != nil {
			fail(w, err)
			return
		}

		err = s.Waves().Delete(id)
		if err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func playHandler(s *wavedma.Subsystem) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := waveID(r)
		if err != nil {
			fail(w, err)
			return
		}

		mode, err := config.Program{Mode: r.URL.Query().Get("mode")}.PlayMode()
		if err != nil {
			fail(w, err)
			return
		}

		cbs, err := s.Waves().Play(id, mode)
		if err != nil {
			fail(w, err)
			return
		}

		writer := jwriter.NewWriter()
		obj := writer.Object()
		obj.Name("ControlBlocks").Int(cbs)
		obj.End()
		reply(w, http.StatusOK, &writer)
	}
}

func chainHandler(s *wavedma.Subsystem) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var chain []config.OpSpec
		err := decode(r, &chain)
		if err != nil {
			fail(w, err)
			return
		}

		// Over HTTP waves are named by id, the engine checks they exist
		ids := make(map[string]int)
		for _, op := range chain {
			id, err := strconv.Atoi(op.Wave)
			if err == nil {
				ids[op.Wave] = id
			}
		}

		ops, err := config.Program{Chain: chain}.Ops(ids)
		if err != nil {
			fail(w, err)
			return
		}

		info, err := s.Waves().Submit(ops)
		if err != nil {
			fail(w, err)
			return
		}

		writer := jwriter.NewWriter()
		obj := writer.Object()
		obj.Name("ControlBlocks").Int(info.ControlBlocks)
		obj.Name("Counters").Int(info.Counters)
		obj.End()
		reply(w, http.StatusOK, &writer)
	}
}

func stopHandler(s *wavedma.Subsystem) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Waves().Stop()
		w.WriteHeader(http.StatusNoContent)
	}
}
