package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stellarlinkco/taskpulse/internal/http/dto"
	"github.com/stellarlinkco/taskpulse/internal/poll"
)

const noOpenPollMessage = "Нет ожидающего ответа опроса"

// PollHandler exposes manual nudges and direct poll-response submission.
// Submissions go through the same Responder the Telegram correlator uses.
type PollHandler struct {
	nudger    Nudger
	responder Responder
}

func NewPollHandler(nudger Nudger, responder Responder) *PollHandler {
	return &PollHandler{nudger: nudger, responder: responder}
}

func (h *PollHandler) Nudge(c *gin.Context) {
	taskID, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.nudger.Nudge(c.Request.Context(), taskID)
	if err != nil {
		writeStoreError(c, err, "task")
		return
	}
	c.JSON(http.StatusOK, dto.NudgeResponse{OK: res.OK, Sent: res.Sent, Message: res.Message})
}

func (h *PollHandler) SubmitResponse(c *gin.Context) {
	taskID, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.PollResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: user_id is required"})
		return
	}

	out, err := h.responder.Submit(c.Request.Context(), taskID, req.UserID, req.ResponseText)
	if errors.Is(err, poll.ErrEmptyResponse) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "response_text is empty"})
		return
	}
	if err != nil {
		writeStoreError(c, err, "task")
		return
	}
	if !out.Recorded {
		c.JSON(http.StatusOK, dto.PollResponseResponse{OK: false, Message: noOpenPollMessage})
		return
	}
	c.JSON(http.StatusOK, dto.PollResponseResponse{
		OK:       true,
		Status:   string(out.Status),
		Advanced: out.Advanced,
	})
}
