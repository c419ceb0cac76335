package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/certifica/internal/adapters/http/api"
	"github.com/okian/certifica/internal/adapters/mq/reconciler"
	service "github.com/okian/certifica/internal/app"
	"github.com/okian/certifica/internal/domain/certification"
	"github.com/okian/certifica/internal/domain/model"
	"github.com/okian/certifica/internal/domain/summary"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies implements api.Dependencies with canned results.
type mockDependencies struct {
	submitted  []service.Submission
	submitRes  service.SubmitResult
	submitErr  error
	progress   service.Progress
	tax        *model.Taxonomy
	taxErr     error
	refreshed  int
	pending    []model.Action
	syncRes    reconciler.Result
	syncErr    error
	summary    summary.Summary
	summaryErr error
	connected  bool
}

func (m *mockDependencies) SubmitEvaluation(_ context.Context, sub service.Submission) (service.SubmitResult, error) {
	m.submitted = append(m.submitted, sub)
	return m.submitRes, m.submitErr
}

func (m *mockDependencies) Progress(_ context.Context, entries []model.ScoreEntry) (service.Progress, error) {
	for _, e := range entries {
		if e.KPIID == "ghost" {
			return service.Progress{}, fmt.Errorf("%w: unknown kpi", service.ErrInvalidSubmission)
		}
	}
	return m.progress, nil
}

func (m *mockDependencies) Taxonomy() (*model.Taxonomy, error) { return m.tax, m.taxErr }

func (m *mockDependencies) RefreshTaxonomy(context.Context) (*model.Taxonomy, error) {
	m.refreshed++
	return m.tax, m.taxErr
}

func (m *mockDependencies) PendingActions(context.Context) ([]model.Action, error) {
	return m.pending, nil
}

func (m *mockDependencies) Sync(context.Context) (reconciler.Result, error) {
	return m.syncRes, m.syncErr
}

func (m *mockDependencies) IsConnected() bool { return m.connected }

func (m *mockDependencies) Dashboard(context.Context) (summary.Summary, error) {
	return m.summary, m.summaryErr
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDependencies) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}})
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDependencies{tax: model.NewTaxonomy(nil, nil)})

		Convey("Then health serves the metrics registry", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats are served as JSON", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("Then wrong methods are not found", func() {
			So(do(mux, http.MethodGet, "/evaluations", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/stats", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/sync", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/taxonomy/refresh", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestEvaluationsHandler(t *testing.T) {
	Convey("Given an evaluations handler", t, func() {
		deps := &mockDependencies{
			submitRes: service.SubmitResult{
				Evaluation: model.Evaluation{ID: "e-1", TotalScore: 680, Category: "Categoría 2 (Avanzado)"},
				Tier:       certification.Classify(680),
			},
		}
		mux := newMux(deps)
		body := `{"academy_id":"a-1","evaluator_id":"ev-1","evaluation_date":"2024-05-01",
			"scores":[{"kpi_id":"inf-1","score":8},{"kpi_id":"met-1","score":5,"comments":"ok"}]}`

		Convey("When a valid evaluation is posted and written", func() {
			w := do(mux, http.MethodPost, "/evaluations", body)

			Convey("Then it is created", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				out := decode(w)
				So(out["evaluation"].(map[string]any)["total_score"], ShouldEqual, float64(680))
				So(out["tier"].(map[string]any)["label"], ShouldEqual, "Avanzado")
			})

			Convey("Then the request is mapped to a completed submission", func() {
				So(deps.submitted, ShouldHaveLength, 1)
				sub := deps.submitted[0]
				So(sub.Status, ShouldEqual, model.StatusCompleted)
				So(sub.Date.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
				So(sub.Scores, ShouldHaveLength, 2)
				So(sub.Scores[1].Comments, ShouldEqual, "ok")
			})
		})

		Convey("When the submission was queued for later sync", func() {
			deps.submitRes.Queued = true
			deps.submitRes.QueuedActions = 3
			w := do(mux, http.MethodPost, "/evaluations", body)

			Convey("Then it is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(decode(w)["queued_actions"], ShouldEqual, float64(3))
			})
		})

		Convey("When the body is not valid JSON", func() {
			w := do(mux, http.MethodPost, "/evaluations", `{"academy_id":`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
				So(deps.submitted, ShouldBeEmpty)
			})
		})

		Convey("When the body carries unknown fields", func() {
			w := do(mux, http.MethodPost, "/evaluations", `{"academy":"a-1"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the date is malformed", func() {
			w := do(mux, http.MethodPost, "/evaluations", `{"academy_id":"a","evaluator_id":"e","evaluation_date":"01/05/2024"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the service rejects the submission", func() {
			deps.submitErr = fmt.Errorf("%w: score out of range", service.ErrInvalidSubmission)
			w := do(mux, http.MethodPost, "/evaluations", body)

			Convey("Then it is unprocessable", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(decode(w)["code"], ShouldEqual, "invalid_submission")
			})
		})

		Convey("When the service is not started", func() {
			deps.submitErr = service.ErrNotStarted
			w := do(mux, http.MethodPost, "/evaluations", body)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When the queue cannot persist", func() {
			deps.submitErr = fmt.Errorf("%w: disk full", service.ErrQueueUnavailable)
			w := do(mux, http.MethodPost, "/evaluations", body)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("When the queue fails after part of the evaluation was saved", func() {
			deps.submitErr = fmt.Errorf("%w: evaluation eval-1: 2 of 3 writes saved: %w",
				service.ErrIncompleteSubmission, service.ErrQueueUnavailable)
			w := do(mux, http.MethodPost, "/evaluations", body)

			Convey("Then the client learns which evaluation is incomplete", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				out := decode(w)
				So(out["code"], ShouldEqual, "incomplete_submission")
				So(out["message"], ShouldContainSubstring, "eval-1")
			})
		})

		Convey("When progress is requested", func() {
			deps.progress = service.Progress{Overall: 68, FinalScore: 680, Tier: certification.Classify(680)}
			w := do(mux, http.MethodPost, "/progress", `{"scores":[{"kpi_id":"inf-1","score":8}]}`)

			Convey("Then the live view is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["overall"], ShouldEqual, float64(68))
			})
		})

		Convey("When progress references an unknown KPI", func() {
			w := do(mux, http.MethodPost, "/progress", `{"scores":[{"kpi_id":"ghost","score":1}]}`)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
		})
	})
}

func TestCertificationHandler(t *testing.T) {
	Convey("Given a certification handler", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("When a score is classified", func() {
			w := do(mux, http.MethodGet, "/certification?score=850", "")

			Convey("Then the tier is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				out := decode(w)
				So(out["in_range"], ShouldEqual, true)
				So(out["tier"].(map[string]any)["label"], ShouldEqual, "Elite")
			})
		})

		Convey("When the score is out of range", func() {
			out := decode(do(mux, http.MethodGet, "/certification?score=1200", ""))

			Convey("Then the lowest tier is returned and flagged", func() {
				So(out["in_range"], ShouldEqual, false)
				So(out["tier"].(map[string]any)["name"], ShouldEqual, certification.Lowest().Name)
			})
		})

		Convey("When the score is missing or malformed", func() {
			So(do(mux, http.MethodGet, "/certification", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/certification?score=abc", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the score is not a finite number", func() {
			for _, raw := range []string{"NaN", "Inf", "-Inf", "%2BInf", "1e999"} {
				w := do(mux, http.MethodGet, "/certification?score="+raw, "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
			}
		})

		Convey("When the tiers are listed", func() {
			w := do(mux, http.MethodGet, "/certification/tiers", "")
			var tiers []certification.Tier
			So(json.Unmarshal(w.Body.Bytes(), &tiers), ShouldBeNil)
			So(tiers, ShouldHaveLength, 5)
		})
	})
}

func TestTaxonomyHandler(t *testing.T) {
	Convey("Given a taxonomy handler", t, func() {
		deps := &mockDependencies{tax: model.NewTaxonomy(
			[]model.Category{{ID: "inf", Name: "Infraestructura", Weight: 60}},
			[]model.KPI{{ID: "inf-1", CategoryID: "inf", Name: "Campos", MaxScore: 10}},
		)}
		mux := newMux(deps)

		Convey("When the taxonomy is requested", func() {
			w := do(mux, http.MethodGet, "/taxonomy", "")
			var snap model.Snapshot
			So(json.Unmarshal(w.Body.Bytes(), &snap), ShouldBeNil)
			So(snap.Categories, ShouldHaveLength, 1)
			So(snap.KPIs, ShouldHaveLength, 1)
		})

		Convey("When a refresh is requested", func() {
			w := do(mux, http.MethodPost, "/taxonomy/refresh", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.refreshed, ShouldEqual, 1)
		})

		Convey("When the taxonomy is unavailable", func() {
			deps.taxErr = service.ErrTaxonomyUnavailable
			So(do(mux, http.MethodPost, "/taxonomy/refresh", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestSyncHandler(t *testing.T) {
	Convey("Given a sync handler", t, func() {
		deps := &mockDependencies{connected: true}
		mux := newMux(deps)

		Convey("When the queue is empty", func() {
			out := decode(do(mux, http.MethodGet, "/queue", ""))

			Convey("Then an empty list is returned", func() {
				So(out["pending"], ShouldEqual, float64(0))
				So(out["actions"], ShouldResemble, []any{})
				So(out["connected"], ShouldEqual, true)
			})
		})

		Convey("When actions are pending", func() {
			deps.pending = []model.Action{{ID: "q-1", Resource: "evaluations", Kind: model.ActionInsert}}
			out := decode(do(mux, http.MethodGet, "/queue", ""))
			So(out["pending"], ShouldEqual, float64(1))
		})

		Convey("When a sync drains the queue", func() {
			deps.syncRes = reconciler.Result{Success: true, Applied: 2, Total: 2, Remaining: []model.Action{}}
			w := do(mux, http.MethodPost, "/sync", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["applied"], ShouldEqual, float64(2))
		})

		Convey("When a sync leaves actions behind", func() {
			deps.syncRes = reconciler.Result{Success: false, Applied: 1, Failed: 1, Total: 2}
			So(do(mux, http.MethodPost, "/sync", "").Code, ShouldEqual, http.StatusMultiStatus)
		})

		Convey("When the service fails", func() {
			deps.syncErr = errors.New("boom")
			So(do(mux, http.MethodPost, "/sync", "").Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestDashboardHandler(t *testing.T) {
	Convey("Given a dashboard handler", t, func() {
		deps := &mockDependencies{summary: summary.Summary{TotalEvaluations: 4, CompletedEvaluations: 3, AverageScore: 712}}
		mux := newMux(deps)

		Convey("When the dashboard is requested", func() {
			w := do(mux, http.MethodGet, "/dashboard", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
		})

		Convey("When no evaluation reader is configured", func() {
			deps.summaryErr = service.ErrDashboardUnavailable
			So(do(mux, http.MethodGet, "/dashboard", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given API errors", t, func() {
		cause := errors.New("decode failed")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)

		Convey("Then both the kind and the cause are matched", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: decode failed")
		})

		Convey("Then wrapping nil stays nil", func() {
			So(api.Wrap("api.op", nil), ShouldBeNil)
			So(api.NewKind("api.op", api.ErrUnavailable).Error(), ShouldEqual, "api.op: service unavailable")
		})
	})
}
