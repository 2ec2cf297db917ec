package handler_test

import (
	"context"
	"errors"
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

var _ = Describe("TaskHandler", func() {
	var (
		engine *gin.Engine
		tasks  *mockTaskService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		tasks = &mockTaskService{}
		engine = gin.New()
		router.SetupRoutes(engine, router.Services{
			Users:     &mockUserService{},
			Tasks:     tasks,
			Nudger:    &mockNudger{},
			Responder: &mockResponder{},
		}, router.RouterConfig{})
	})

	Describe("Create", func() {
		It("creates a task with normalized poll time and parsed assignees", func() {
			var (
				got       *task.Task
				assignees []int64
			)
			tasks.createFn = func(_ context.Context, t *task.Task, ids []int64) error {
				t.ID = 77
				t.Status = task.StatusNew
				got, assignees = t, ids
				return nil
			}

			w := doJSON(engine, http.MethodPost, "/api/tasks", map[string]any{
				"title":              "Quarterly report",
				"poll_interval_days": 2,
				"poll_time":          "9:05",
				"assignee_ids":       []string{"1876543210987654321", "12"},
			})

			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(*got.PollTime).To(Equal("09:05"))
			Expect(*got.PollIntervalDays).To(Equal(2))
			Expect(assignees).To(Equal([]int64{1876543210987654321, 12}))
			resp := decode(w)
			Expect(resp["id"]).To(Equal("77"))
			Expect(resp["status"]).To(Equal("new"))
		})

		It("returns 400 for a malformed poll time", func() {
			tasks.createFn = func(context.Context, *task.Task, []int64) error {
				Fail("store must not be called")
				return nil
			}
			w := doJSON(engine, http.MethodPost, "/api/tasks", map[string]any{
				"title":     "x",
				"poll_time": "25:00",
			})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 for an unknown status", func() {
			w := doJSON(engine, http.MethodPost, "/api/tasks", map[string]any{
				"title":  "x",
				"status": "finished",
			})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 for a bad assignee id", func() {
			w := doJSON(engine, http.MethodPost, "/api/tasks", map[string]any{
				"title":        "x",
				"assignee_ids": []string{"alice"},
			})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 when an assignee does not exist", func() {
			tasks.createFn = func(context.Context, *task.Task, []int64) error {
				return fmt.Errorf("assign user 5: %w", store.ErrUnknownReference)
			}
			w := doJSON(engine, http.MethodPost, "/api/tasks", map[string]any{
				"title":        "x",
				"assignee_ids": []string{"5"},
			})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 without a title", func() {
			w := doJSON(engine, http.MethodPost, "/api/tasks", map[string]any{"description": "no title"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("List", func() {
		It("passes limit and offset through", func() {
			var gotLimit, gotOffset int
			tasks.listFn = func(_ context.Context, limit, offset int) ([]task.Task, error) {
				gotLimit, gotOffset = limit, offset
				return []task.Task{{ID: 1, Title: "a", Status: task.StatusNew}}, nil
			}
			w := doJSON(engine, http.MethodGet, "/api/tasks?limit=10&offset=20", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gotLimit).To(Equal(10))
			Expect(gotOffset).To(Equal(20))
			Expect(decode(w)["tasks"]).To(HaveLen(1))
		})

		It("caps the limit", func() {
			var gotLimit int
			tasks.listFn = func(_ context.Context, limit, _ int) ([]task.Task, error) {
				gotLimit = limit
				return nil, nil
			}
			w := doJSON(engine, http.MethodGet, "/api/tasks?limit=100000", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gotLimit).To(Equal(500))
		})

		It("returns 400 for a negative offset", func() {
			w := doJSON(engine, http.MethodGet, "/api/tasks?offset=-1", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Get", func() {
		It("includes poll responses and status history", func() {
			answered := "Готово"
			tasks.getFn = func(_ context.Context, id int64) (*task.Task, error) {
				return &task.Task{ID: id, Title: "t", Status: task.StatusInProgress}, nil
			}
			tasks.pollsFn = func(_ context.Context, id int64) ([]task.PollRecord, error) {
				return []task.PollRecord{{ID: 5, TaskID: id, UserID: 9, PolledAt: time.Now(), ResponseText: &answered, StatusAtPoll: task.StatusNew}}, nil
			}
			tasks.historyFn = func(_ context.Context, id int64) ([]task.StatusChange, error) {
				return []task.StatusChange{
					{TaskID: id, Status: task.StatusNew, Comment: "Задача создана"},
					{TaskID: id, Status: task.StatusInProgress, Comment: store.AdvanceComment},
				}, nil
			}

			w := doJSON(engine, http.MethodGet, "/api/tasks/3", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decode(w)
			Expect(resp["id"]).To(Equal("3"))
			Expect(resp["poll_responses"]).To(HaveLen(1))
			Expect(resp["status_history"]).To(HaveLen(2))
			polls := resp["poll_responses"].([]any)
			Expect(polls[0].(map[string]any)["user_id"]).To(Equal("9"))
			Expect(polls[0].(map[string]any)["status_at_poll"]).To(Equal("new"))
		})

		It("returns 404 for a missing task", func() {
			tasks.getFn = func(context.Context, int64) (*task.Task, error) {
				return nil, store.ErrNotFound
			}
			w := doJSON(engine, http.MethodGet, "/api/tasks/3", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Update", func() {
		It("maps an empty poll time to clearing and replaces assignees", func() {
			var got task.Update
			tasks.updateFn = func(_ context.Context, id int64, upd task.Update) (*task.Task, error) {
				got = upd
				return &task.Task{ID: id, Title: "t", Status: task.StatusCancelled}, nil
			}

			w := doJSON(engine, http.MethodPut, "/api/tasks/3", map[string]any{
				"status":       "cancelled",
				"poll_time":    "",
				"assignee_ids": []string{},
			})

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(*got.Status).To(Equal(task.StatusCancelled))
			Expect(*got.PollTime).To(Equal(""))
			Expect(got.SetAssignees).To(BeTrue())
			Expect(got.AssigneeIDs).To(BeEmpty())
			Expect(got.Title).To(BeNil())
		})

		It("leaves assignees alone when the field is absent", func() {
			var got task.Update
			tasks.updateFn = func(_ context.Context, id int64, upd task.Update) (*task.Task, error) {
				got = upd
				return &task.Task{ID: id}, nil
			}
			w := doJSON(engine, http.MethodPut, "/api/tasks/3", map[string]any{"title": "renamed"})
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(got.SetAssignees).To(BeFalse())
			Expect(*got.Title).To(Equal("renamed"))
		})

		It("returns 404 for a missing task", func() {
			tasks.updateFn = func(context.Context, int64, task.Update) (*task.Task, error) {
				return nil, store.ErrNotFound
			}
			w := doJSON(engine, http.MethodPut, "/api/tasks/3", map[string]any{"title": "x"})
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Delete", func() {
		It("returns 204", func() {
			w := doJSON(engine, http.MethodDelete, "/api/tasks/3", nil)
			Expect(w.Code).To(Equal(http.StatusNoContent))
		})

		It("returns 500 on unexpected errors", func() {
			tasks.deleteFn = func(context.Context, int64) error {
				return errors.New("disk I/O error")
			}
			w := doJSON(engine, http.MethodDelete, "/api/tasks/3", nil)
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
