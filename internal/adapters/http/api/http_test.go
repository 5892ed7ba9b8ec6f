package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/okian/mafiabot/internal/adapters/http/api"
	service "github.com/okian/mafiabot/internal/app"
	"github.com/okian/mafiabot/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type mockTally struct {
	view service.TallyView
	err  error
}

func (m *mockTally) Tally(_ context.Context) (service.TallyView, error) {
	return m.view, m.err
}

type mockStats struct{}

func (mockStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true, "nextCycle": 4}
}

func newMux(tally api.TallyProvider) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(tally, mockStats{}).Register(mux)
	return mux
}

func do(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestTallyEndpoint(t *testing.T) {
	Convey("Given a running service", t, func() {
		mux := newMux(&mockTally{view: service.TallyView{
			Cycle:      3,
			Day:        2,
			Stage:      "day",
			Phase:      "open",
			AliveCount: 5,
			Majority:   3,
			Ballots:    []model.Ballot{{Voter: "alice", Target: "bob"}},
		}})

		Convey("When GET /tally is called", func() {
			rec := do(mux, http.MethodGet, "/tally")

			Convey("Then the day's state is returned as JSON", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")

				var got service.TallyView
				So(json.Unmarshal(rec.Body.Bytes(), &got), ShouldBeNil)
				So(got.Day, ShouldEqual, 2)
				So(got.Majority, ShouldEqual, 3)
				So(got.Ballots, ShouldHaveLength, 1)
			})
		})

		Convey("When POST /tally is called", func() {
			rec := do(mux, http.MethodPost, "/tally")
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})

	Convey("Given a service that has not started", t, func() {
		mux := newMux(&mockTally{err: service.ErrNotStarted})

		Convey("Then /tally is unavailable", func() {
			rec := do(mux, http.MethodGet, "/tally")
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})

	Convey("Given a failing service", t, func() {
		mux := newMux(&mockTally{err: errors.New("boom")})

		Convey("Then /tally reports an internal error", func() {
			rec := do(mux, http.MethodGet, "/tally")
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			So(rec.Body.String(), ShouldContainSubstring, "boom")
		})
	})
}

func TestStatsAndHealth(t *testing.T) {
	Convey("Given the status API", t, func() {
		mux := newMux(&mockTally{})

		Convey("Then /stats returns the provider's map", func() {
			rec := do(mux, http.MethodGet, "/stats")
			So(rec.Code, ShouldEqual, http.StatusOK)
			var got map[string]interface{}
			So(json.Unmarshal(rec.Body.Bytes(), &got), ShouldBeNil)
			So(got["nextCycle"], ShouldEqual, 4)
		})

		Convey("Then /healthz exposes the metrics registry", func() {
			do(mux, http.MethodGet, "/stats")
			rec := do(mux, http.MethodGet, "/healthz")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "mafiabot_moderator_http_requests_total")
		})
	})
}
