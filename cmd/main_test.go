package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/nback/internal/adapters/identity"
	"github.com/okian/nback/internal/config"
	"github.com/okian/nback/internal/domain/model"
	"github.com/okian/nback/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func testConfig(driver string, t *testing.T) *config.Config {
	cfg := config.New()
	cfg.StoreDriver = driver
	cfg.SQLitePath = filepath.Join(t.TempDir(), "nback.db")
	cfg.JWTSecret = "secret"
	cfg.AdminToken = "admin"
	return cfg
}

func TestMainApplicationIntegration(t *testing.T) {
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite} {
		convey.Convey("Given the application wired with the "+driver+" store", t, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			cfg := testConfig(driver, t)
			svc, err := buildService(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			defer svc.Stop()

			handler := newRouter(ctx, cfg, svc, logger.Nop())

			convey.Convey("When a session is submitted and the leaderboard is read", func() {
				tok, err := identity.Issue(cfg.JWTSecret, model.Identity{UserID: "u1", Username: "alice"}, time.Hour, time.Now())
				convey.So(err, convey.ShouldBeNil)

				body := `{"status":"completed","title":"Quad","nBack":1,"trialTimeMs":2500,
"completedTrials":20,"matchChance":25,"accuracyPercent":0.5,"elapsedSeconds":60}`
				req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(body))
				req.Header.Set("Authorization", "Bearer "+tok)
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)

				w = httptest.NewRecorder()
				handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/leaderboard", nil))

				convey.Convey("Then the stored session shows up with its points", func() {
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
					var out struct {
						Rows []struct {
							Username   string `json:"username"`
							TotalScore string `json:"totalScore"`
						} `json:"rows"`
					}
					convey.So(json.Unmarshal(w.Body.Bytes(), &out), convey.ShouldBeNil)
					convey.So(out.Rows, convey.ShouldHaveLength, 1)
					convey.So(out.Rows[0].Username, convey.ShouldEqual, "alice")
					convey.So(out.Rows[0].TotalScore, convey.ShouldEqual, "16")
				})
			})

			convey.Convey("Then the docs and readiness routes are mounted", func() {
				for _, path := range []string{"/api-docs", "/openapi.yaml", "/readyz"} {
					w := httptest.NewRecorder()
					handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				}
			})
		})
	}
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given a configuration that cannot be served", t, func() {
		ctx := context.Background()

		convey.Convey("When the sqlite path is unusable", func() {
			cfg := testConfig(config.DriverSQLite, t)
			cfg.SQLitePath = filepath.Join(t.TempDir(), "missing", "dir", "nback.db")

			_, err := buildService(ctx, cfg, logger.Nop())

			convey.Convey("Then building the service fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the configuration itself is invalid", func() {
			t.Setenv("NBACK_STORE_DRIVER", "mysql")

			err := run(ctx)

			convey.Convey("Then run reports a config error", func() {
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
			})
		})
	})
}
