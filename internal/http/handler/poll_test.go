package handler_test

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stellarlinkco/taskpulse/internal/http/router"
	"github.com/stellarlinkco/taskpulse/internal/poll"
	"github.com/stellarlinkco/taskpulse/internal/store"
	"github.com/stellarlinkco/taskpulse/internal/task"
)

var _ = Describe("PollHandler", func() {
	var (
		engine    *gin.Engine
		nudger    *mockNudger
		responder *mockResponder
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		nudger = &mockNudger{}
		responder = &mockResponder{}
		engine = gin.New()
		router.SetupRoutes(engine, router.Services{
			Users:     &mockUserService{},
			Tasks:     &mockTaskService{},
			Nudger:    nudger,
			Responder: responder,
		}, router.RouterConfig{})
	})

	Describe("Nudge", func() {
		It("reports how many reminders were sent", func() {
			nudger.nudgeFn = func(_ context.Context, taskID int64) (poll.NudgeResult, error) {
				Expect(taskID).To(Equal(int64(8)))
				return poll.NudgeResult{OK: true, Sent: 2, Message: "Напоминание отправлено 2 чел."}, nil
			}
			w := doJSON(engine, http.MethodPost, "/api/tasks/8/nudge", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decode(w)
			Expect(resp["ok"]).To(BeTrue())
			Expect(resp["sent"]).To(BeNumerically("==", 2))
		})

		It("reports a task without assignees as not ok", func() {
			nudger.nudgeFn = func(context.Context, int64) (poll.NudgeResult, error) {
				return poll.NudgeResult{Message: "Нет исполнителей у задачи"}, nil
			}
			w := doJSON(engine, http.MethodPost, "/api/tasks/8/nudge", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)["ok"]).To(BeFalse())
		})

		It("returns 404 for a missing task", func() {
			nudger.nudgeFn = func(context.Context, int64) (poll.NudgeResult, error) {
				return poll.NudgeResult{}, store.ErrNotFound
			}
			w := doJSON(engine, http.MethodPost, "/api/tasks/8/nudge", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("SubmitResponse", func() {
		It("records the response and reports the new status", func() {
			responder.submitFn = func(_ context.Context, taskID, userID int64, text string) (task.ResponseOutcome, error) {
				Expect(taskID).To(Equal(int64(8)))
				Expect(userID).To(Equal(int64(1876543210987654321)))
				Expect(text).To(Equal("Готово"))
				return task.ResponseOutcome{Recorded: true, Previous: task.StatusNew, Status: task.StatusInProgress, Advanced: true}, nil
			}
			w := doJSON(engine, http.MethodPost, "/api/tasks/8/poll-response", map[string]any{
				"user_id":       "1876543210987654321",
				"response_text": "Готово",
			})
			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decode(w)
			Expect(resp["ok"]).To(BeTrue())
			Expect(resp["status"]).To(Equal("in_progress"))
			Expect(resp["advanced"]).To(BeTrue())
		})

		It("returns ok false when nothing is awaiting a response", func() {
			responder.submitFn = func(context.Context, int64, int64, string) (task.ResponseOutcome, error) {
				return task.ResponseOutcome{}, nil
			}
			w := doJSON(engine, http.MethodPost, "/api/tasks/8/poll-response", map[string]any{
				"user_id":       "5",
				"response_text": "hi",
			})
			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decode(w)
			Expect(resp["ok"]).To(BeFalse())
			Expect(resp["message"]).To(Equal("Нет ожидающего ответа опроса"))
		})

		It("returns 400 for an empty response", func() {
			responder.submitFn = func(context.Context, int64, int64, string) (task.ResponseOutcome, error) {
				return task.ResponseOutcome{}, poll.ErrEmptyResponse
			}
			w := doJSON(engine, http.MethodPost, "/api/tasks/8/poll-response", map[string]any{
				"user_id":       "5",
				"response_text": "   ",
			})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 without a user id", func() {
			w := doJSON(engine, http.MethodPost, "/api/tasks/8/poll-response", map[string]any{
				"response_text": "hi",
			})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
