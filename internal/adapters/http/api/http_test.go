package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/nback/internal/adapters/http/api"
	"github.com/okian/nback/internal/adapters/identity"
	"github.com/okian/nback/internal/adapters/repository"
	service "github.com/okian/nback/internal/app"
	"github.com/okian/nback/internal/domain/model"
	"github.com/okian/nback/internal/domain/rank"
	"github.com/okian/nback/internal/domain/types"
	"github.com/okian/nback/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const (
	testSecret     = "test-secret"
	testAdminToken = "admin-secret"
)

// failingDeps lets tests force store errors through every read and write path.
type failingDeps struct {
	err error
}

func (f *failingDeps) Submit(context.Context, service.Submission) (service.SubmitResult, error) {
	return service.SubmitResult{}, f.err
}

func (f *failingDeps) Leaderboard(context.Context, types.Category, int) ([]types.Entry, error) {
	return nil, f.err
}

func (f *failingDeps) Limit(n int, specified bool) int {
	if !specified {
		return 50
	}
	return n
}

func (f *failingDeps) Rank(context.Context, string) (service.RankView, error) {
	return service.RankView{}, f.err
}

func (f *failingDeps) Ranks() rank.Ladder { return rank.Default() }
func (f *failingDeps) Migrate(context.Context) (int, error) { return 0, f.err }
func (f *failingDeps) Ping(context.Context) error { return f.err }
func (f *failingDeps) GetStats() map[string]interface{} { return map[string]interface{}{} }

type harness struct {
	handler http.Handler
	svc     *service.Service
}

func newHarness(opts ...api.ServerOption) *harness {
	svc := service.New(
		service.WithLog(repository.NewMemoryLog()),
		service.WithLogger(logger.Nop()),
	)
	So(svc.Start(context.Background()), ShouldBeNil)
	Reset(svc.Stop)

	opts = append([]api.ServerOption{
		api.WithVerifier(identity.NewVerifier(testSecret)),
		api.WithAdminToken(testAdminToken),
	}, opts...)
	srv := api.NewServer(svc, opts...)
	return &harness{handler: srv.Handler(context.Background()), svc: svc}
}

func token(userID, username string) string {
	tok, err := identity.Issue(testSecret, model.Identity{UserID: userID, Username: username}, time.Hour, time.Now())
	So(err, ShouldBeNil)
	return tok
}

func (h *harness) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func (h *harness) submit(tok, body string) *httptest.ResponseRecorder {
	return h.do(http.MethodPost, "/sessions", body, map[string]string{"Authorization": "Bearer " + tok})
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

const dualSession = `{"status":"completed","title":"Dual N-Back","nBack":2,"trialTimeMs":2500,
"elapsedSeconds":120,"completedTrials":20,"matchChance":30,"accuracyPercent":1}`

func TestServer_Health(t *testing.T) {
	Convey("Given a running API server", t, func() {
		h := newHarness()

		Convey("Then /healthz and /metrics serve Prometheus text", func() {
			for _, path := range []string{"/healthz", "/metrics"} {
				w := h.do(http.MethodGet, path, "", nil)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "nback_")
			}
		})

		Convey("Then /readyz reports ready", func() {
			w := h.do(http.MethodGet, "/readyz", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["status"], ShouldEqual, "ready")
		})

		Convey("Then /stats reports the store", func() {
			w := h.do(http.MethodGet, "/stats", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			stats := decode(w)
			So(stats["started"], ShouldEqual, true)
			So(stats["store"], ShouldEqual, repository.DriverMemory)
		})

		Convey("Then every response carries a request id", func() {
			w := h.do(http.MethodGet, "/stats", "", map[string]string{api.RequestIDHeader: "req-1"})
			So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "req-1")
			w = h.do(http.MethodGet, "/stats", "", nil)
			So(w.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)
		})

		Convey("Then unknown routes and methods get JSON errors", func() {
			w := h.do(http.MethodGet, "/nope", "", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode(w)["code"], ShouldEqual, "not_found")

			w = h.do(http.MethodDelete, "/leaderboard", "", nil)
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestServer_Submit(t *testing.T) {
	Convey("Given a running API server", t, func() {
		h := newHarness()
		tok := token("u1", "alice")

		Convey("When an eligible dual 2-back session is submitted", func() {
			w := h.submit(tok, dualSession)

			Convey("Then it is awarded 32 points", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["ok"], ShouldEqual, true)
				So(body["points"], ShouldEqual, "32")
				So(body["eligibleForPoints"], ShouldEqual, true)
				So(body["reason"], ShouldBeNil)
				So(body["sessionId"], ShouldNotBeEmpty)
				So(body, ShouldNotContainKey, "duplicate")
			})
		})

		Convey("When numeric fields arrive as strings", func() {
			body := `{"status":"completed","tags":["a","b"],"nBack":"2","trialTimeMs":"2500",
"completedTrials":"20","matchChance":"30","accuracyPercent":"1"}`
			w := h.submit(tok, body)

			Convey("Then they are parsed like numbers", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["points"], ShouldEqual, "32")
			})
		})

		Convey("When nBack arrives fractional", func() {
			w := h.submit(tok, `{"status":"completed","modalities":2,"nBack":2.5,"completedTrials":20,"matchChance":30}`)

			Convey("Then the product with modalities is floored, not nBack", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["points"], ShouldEqual, "32")
			})
		})

		Convey("When completedTrials is beyond the int range", func() {
			w := h.submit(tok, `{"status":"completed","nBack":1,"completedTrials":1e300,"matchChance":30}`)

			Convey("Then it still clears the trial minimum", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["eligibleForPoints"], ShouldEqual, true)
				So(body["reason"], ShouldBeNil)
			})
		})

		Convey("When too few trials were played", func() {
			w := h.submit(tok, `{"status":"completed","nBack":3,"completedTrials":19,"matchChance":30}`)

			Convey("Then the session is logged with zero points and a reason", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["points"], ShouldEqual, "0")
				So(body["eligibleForPoints"], ShouldEqual, false)
				So(body["reason"], ShouldEqual, string(model.ReasonMinTrials))
			})
		})

		Convey("When a cancelled session is submitted", func() {
			w := h.submit(tok, `{"status":"cancelled","nBack":5,"completedTrials":40,"matchChance":30}`)

			Convey("Then it is ineligible as not completed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["reason"], ShouldEqual, string(model.ReasonNotCompleted))
			})
		})

		Convey("When status is missing or unknown", func() {
			w := h.submit(tok, `{"nBack":2}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["message"], ShouldEqual, "Missing status")

			w = h.submit(tok, `{"status":"paused"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["message"], ShouldEqual, "Invalid status")
		})

		Convey("When the body is not JSON", func() {
			w := h.submit(tok, `not json`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["code"], ShouldEqual, "bad_request")
		})

		Convey("When nBack exceeds the sanity bound", func() {
			w := h.submit(tok, `{"status":"completed","nBack":101}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["message"], ShouldContainSubstring, "nBack")
		})

		Convey("When too many modalities are claimed", func() {
			w := h.submit(tok, `{"status":"completed","nBack":2,"modalities":17}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["message"], ShouldContainSubstring, "modalities")
		})

		Convey("When the same Idempotency-Key is replayed", func() {
			headers := map[string]string{"Authorization": "Bearer " + tok, "Idempotency-Key": "k1"}
			first := h.do(http.MethodPost, "/sessions", dualSession, headers)
			second := h.do(http.MethodPost, "/submit-game", dualSession, headers)

			Convey("Then the replay is flagged and nothing new is appended", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				So(second.Code, ShouldEqual, http.StatusOK)
				So(decode(second)["duplicate"], ShouldEqual, true)
				So(decode(second)["sessionId"], ShouldEqual, decode(first)["sessionId"])
				So(h.svc.GetStats()["sessionsAppended"], ShouldEqual, int64(1))
			})
		})
	})
}

func TestServer_Auth(t *testing.T) {
	Convey("Given a server that requires tokens", t, func() {
		h := newHarness()

		Convey("Then a request without a token is rejected", func() {
			w := h.do(http.MethodPost, "/sessions", dualSession, nil)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(decode(w)["code"], ShouldEqual, "unauthorized")
		})

		Convey("Then a forged token is rejected", func() {
			forged, err := identity.Issue("other", model.Identity{UserID: "u1"}, time.Hour, time.Now())
			So(err, ShouldBeNil)
			w := h.submit(forged, dualSession)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Then an expired token is rejected", func() {
			old, err := identity.Issue(testSecret, model.Identity{UserID: "u1"}, time.Minute, time.Now().Add(-time.Hour))
			So(err, ShouldBeNil)
			w := h.submit(old, dualSession)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})
	})

	Convey("Given a server that allows anonymous submissions", t, func() {
		h := newHarness(api.WithAnonymousSubmissions(true))

		Convey("When two anonymous sessions are submitted under one name", func() {
			body := strings.Replace(dualSession, `"status"`, `"username":"guest","status"`, 1)
			So(h.do(http.MethodPost, "/sessions", body, nil).Code, ShouldEqual, http.StatusOK)
			So(h.do(http.MethodPost, "/sessions", body, nil).Code, ShouldEqual, http.StatusOK)

			Convey("Then they share one leaderboard row with no user id", func() {
				rows := decode(h.do(http.MethodGet, "/leaderboard", "", nil))["rows"].([]any)
				So(rows, ShouldHaveLength, 1)
				row := rows[0].(map[string]any)
				So(row["username"], ShouldEqual, "guest")
				So(row["userId"], ShouldBeNil)
				So(row["totalScore"], ShouldEqual, "64")
				So(row["totalGames"], ShouldEqual, 2.0)
			})
		})
	})
}

func TestServer_Leaderboard(t *testing.T) {
	Convey("Given two players with equal scores but different minutes", t, func() {
		h := newHarness()
		short := strings.Replace(dualSession, `"elapsedSeconds":120`, `"elapsedSeconds":300`, 1)
		long := strings.Replace(dualSession, `"elapsedSeconds":120`, `"elapsedSeconds":600`, 1)
		So(h.submit(token("u1", "alice"), short).Code, ShouldEqual, http.StatusOK)
		So(h.submit(token("u2", "bob"), long).Code, ShouldEqual, http.StatusOK)

		Convey("When the score leaderboard is fetched", func() {
			w := h.do(http.MethodGet, "/leaderboard?category=score", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			rows := body["rows"].([]any)

			Convey("Then the player with more minutes ranks first", func() {
				So(body["category"], ShouldEqual, "score")
				So(rows, ShouldHaveLength, 2)
				first := rows[0].(map[string]any)
				So(first["username"], ShouldEqual, "bob")
				So(first["userId"], ShouldEqual, "u2")
				So(first["totalMinutes"], ShouldEqual, 10.0)
				So(first["rank"], ShouldEqual, 1.0)
				So(first["lastPlayed"], ShouldNotBeEmpty)
			})
		})

		Convey("When an unknown category and a bad limit are given", func() {
			w := h.do(http.MethodGet, "/leaderboard?category=elo&limit=abc", "", nil)

			Convey("Then the defaults apply", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["category"], ShouldEqual, "score")
				So(body["rows"], ShouldHaveLength, 2)
			})
		})

		Convey("When the limit is out of range", func() {
			Convey("Then it is clamped", func() {
				rows := decode(h.do(http.MethodGet, "/leaderboard?limit=0", "", nil))["rows"]
				So(rows, ShouldHaveLength, 1)
				rows = decode(h.do(http.MethodGet, "/leaderboard?limit=1000", "", nil))["rows"]
				So(rows, ShouldHaveLength, 2)
			})
		})

		Convey("When the minutes leaderboard is fetched", func() {
			body := decode(h.do(http.MethodGet, "/leaderboard?category=minutes&limit=1", "", nil))
			So(body["category"], ShouldEqual, "minutes")
			So(body["rows"].([]any)[0].(map[string]any)["username"], ShouldEqual, "bob")
		})
	})

	Convey("Given an empty log", t, func() {
		h := newHarness()
		body := decode(h.do(http.MethodGet, "/leaderboard", "", nil))
		So(body["rows"], ShouldBeEmpty)
	})
}

func TestServer_Rank(t *testing.T) {
	Convey("Given a player with 32 points", t, func() {
		h := newHarness()
		So(h.submit(token("u1", "alice"), dualSession).Code, ShouldEqual, http.StatusOK)

		Convey("When their rank is fetched", func() {
			w := h.do(http.MethodGet, "/rank/u1", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)

			Convey("Then they are in the lowest tier with progress to the next", func() {
				So(body["userId"], ShouldEqual, "u1")
				So(body["username"], ShouldEqual, "alice")
				So(body["totalScore"], ShouldEqual, "32")
				So(body["rank"], ShouldEqual, "Adept")
				So(body["minPoints"], ShouldEqual, 0.0)
				So(body["maxPoints"], ShouldEqual, 250.0)
				So(body["nextRank"], ShouldEqual, rank.Default()[1].Name)
				So(body["pointsToNext"], ShouldEqual, "218")
				So(body["range"], ShouldEqual, "0–250 pts")
			})
		})

		Convey("When an unknown user is fetched", func() {
			w := h.do(http.MethodGet, "/rank/ghost", "", nil)

			Convey("Then zero totals and the lowest tier are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["totalScore"], ShouldEqual, "0")
				So(body["rank"], ShouldEqual, "Adept")
			})
		})

		Convey("When the ladder is fetched", func() {
			body := decode(h.do(http.MethodGet, "/ranks", "", nil))
			tiers := body["ranks"].([]any)

			Convey("Then all tiers are listed and the top one is unbounded", func() {
				So(tiers, ShouldHaveLength, len(rank.Default()))
				top := tiers[len(tiers)-1].(map[string]any)
				So(top["rank"], ShouldEqual, "Transcendent")
				So(top["maxPoints"], ShouldBeNil)
				So(top["range"], ShouldEqual, "4,095,750+ pts")
			})
		})
	})
}

func TestServer_Admin(t *testing.T) {
	Convey("Given a running API server", t, func() {
		h := newHarness()

		Convey("Then init-db requires the admin token", func() {
			w := h.do(http.MethodPost, "/admin/init-db", "", nil)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			w = h.do(http.MethodPost, "/admin/init-db", "", map[string]string{api.AdminTokenHeader: "wrong"})
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Then init-db with the right token migrates", func() {
			w := h.do(http.MethodPost, "/admin/init-db", "", map[string]string{api.AdminTokenHeader: testAdminToken})
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["ok"], ShouldEqual, true)
		})
	})

	Convey("Given a server without an admin token", t, func() {
		h := newHarness(api.WithAdminToken(""))
		w := h.do(http.MethodPost, "/admin/init-db", "", map[string]string{api.AdminTokenHeader: ""})
		So(w.Code, ShouldEqual, http.StatusUnauthorized)
	})
}

func TestServer_StoreFailures(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"schema drift", fmt.Errorf("insert: %w", repository.ErrSchemaDrift), http.StatusInternalServerError, "schema_out_of_date"},
		{"unavailable", fmt.Errorf("insert: %w", repository.ErrUnavailable), http.StatusServiceUnavailable, "store_unavailable"},
		{"in progress", service.ErrSubmitInProgress, http.StatusConflict, "in_progress"},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		Convey("Given a store failing with "+tc.name, t, func() {
			srv := api.NewServer(&failingDeps{err: tc.err},
				api.WithVerifier(identity.NewVerifier(testSecret)),
				api.WithAdminToken(testAdminToken))
			h := &harness{handler: srv.Handler(context.Background())}

			Convey("Then submit maps it to its status", func() {
				w := h.submit(token("u1", "alice"), dualSession)
				So(w.Code, ShouldEqual, tc.status)
				body := decode(w)
				So(body["code"], ShouldEqual, tc.code)
				So(body["message"], ShouldNotContainSubstring, "insert")
				if tc.status == http.StatusServiceUnavailable {
					So(w.Header().Get("Retry-After"), ShouldEqual, "5")
				}
			})

			if tc.code == "schema_out_of_date" {
				Convey("Then the drift message points at the migration route", func() {
					body := decode(h.do(http.MethodGet, "/leaderboard", "", nil))
					So(body["message"], ShouldContainSubstring, "/admin/init-db")
				})
			}

			if tc.code == "store_unavailable" {
				Convey("Then reads and readiness report 503", func() {
					So(h.do(http.MethodGet, "/leaderboard", "", nil).Code, ShouldEqual, http.StatusServiceUnavailable)
					So(h.do(http.MethodGet, "/rank/u1", "", nil).Code, ShouldEqual, http.StatusServiceUnavailable)
					So(h.do(http.MethodGet, "/readyz", "", nil).Code, ShouldEqual, http.StatusServiceUnavailable)
				})
			}
		})
	}
}
