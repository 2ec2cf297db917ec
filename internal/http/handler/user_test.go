package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stellarlinkco/taskpulse/internal/http/router"
	"github.com/stellarlinkco/taskpulse/internal/store"
	"github.com/stellarlinkco/taskpulse/internal/task"
)

var _ = Describe("UserHandler", func() {
	var (
		engine *gin.Engine
		users  *mockUserService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		users = &mockUserService{}
		engine = gin.New()
		router.SetupRoutes(engine, router.Services{
			Users:     users,
			Tasks:     &mockTaskService{},
			Nudger:    &mockNudger{},
			Responder: &mockResponder{},
		}, router.RouterConfig{})
	})

	Describe("Create", func() {
		It("returns 201 with the id as a string", func() {
			var created *task.User
			users.createFn = func(_ context.Context, u *task.User) error {
				u.ID = 1876543210987654321
				u.CreatedAt = time.Now()
				created = u
				return nil
			}

			w := doJSON(engine, http.MethodPost, "/api/users", map[string]any{
				"username":    "  alice ",
				"full_name":   "Alice A.",
				"role":        "responsible",
				"telegram_id": 1001,
			})

			Expect(w.Code).To(Equal(http.StatusCreated))
			resp := decode(w)
			Expect(resp["id"]).To(Equal("1876543210987654321"))
			Expect(resp["username"]).To(Equal("alice"))
			Expect(resp["telegram_id"]).To(BeNumerically("==", 1001))
			Expect(created.Role).To(Equal(task.RoleResponsible))
		})

		It("returns 400 for an unknown role", func() {
			w := doJSON(engine, http.MethodPost, "/api/users", map[string]any{
				"username": "bob",
				"role":     "king",
			})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 without a username", func() {
			w := doJSON(engine, http.MethodPost, "/api/users", map[string]any{"full_name": "Nobody"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 409 when the username is taken", func() {
			users.createFn = func(context.Context, *task.User) error {
				return fmt.Errorf("create user %q: %w", "alice", store.ErrConflict)
			}
			w := doJSON(engine, http.MethodPost, "/api/users", map[string]any{"username": "alice"})
			Expect(w.Code).To(Equal(http.StatusConflict))
		})
	})

	Describe("Get", func() {
		It("returns 404 for a missing user", func() {
			users.getFn = func(context.Context, int64) (*task.User, error) {
				return nil, store.ErrNotFound
			}
			w := doJSON(engine, http.MethodGet, "/api/users/42", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 400 for a non-numeric id", func() {
			w := doJSON(engine, http.MethodGet, "/api/users/abc", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("List", func() {
		It("returns all users", func() {
			users.listFn = func(context.Context) ([]task.User, error) {
				return []task.User{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}}, nil
			}
			w := doJSON(engine, http.MethodGet, "/api/users", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)["users"]).To(HaveLen(2))
		})

		It("returns 500 on store failure", func() {
			users.listFn = func(context.Context) ([]task.User, error) {
				return nil, fmt.Errorf("database is locked")
			}
			w := doJSON(engine, http.MethodGet, "/api/users", nil)
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})

var _ = Describe("Router", func() {
	var engine *gin.Engine

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		engine = router.New(router.Services{
			Users: &mockUserService{listFn: func(context.Context) ([]task.User, error) {
				return []task.User{}, nil
			}},
			Tasks:     &mockTaskService{},
			Nudger:    &mockNudger{},
			Responder: &mockResponder{},
			Health:    func(context.Context) error { return nil },
		}, router.RouterConfig{APIKey: "k3y", CORSOrigins: []string{"http://localhost:5173"}})
	})

	It("serves /health without the API key", func() {
		w := doJSON(engine, http.MethodGet, "/health", nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decode(w)["status"]).To(Equal("ok"))
	})

	It("rejects /api requests without the API key", func() {
		w := doJSON(engine, http.MethodGet, "/api/users", nil)
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("accepts /api requests with the API key", func() {
		w := doJSON(engine, http.MethodGet, "/api/users", nil, "X-API-Key", "k3y")
		Expect(w.Code).To(Equal(http.StatusOK))
	})

	It("answers CORS preflight for allowed origins", func() {
		w := doJSON(engine, http.MethodOptions, "/api/users", nil,
			"Origin", "http://localhost:5173",
			"Access-Control-Request-Method", "GET",
		)
		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(w.Header().Get("Access-Control-Allow-Origin")).To(Equal("http://localhost:5173"))
	})
})
