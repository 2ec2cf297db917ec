package dto

type PollResponseRequest struct {
	UserID       int64  `json:"user_id,string" binding:"required"`
	ResponseText string `json:"response_text"`
}

type PollResponseResponse struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message,omitempty"`
	Status   string `json:"status,omitempty"`
	Advanced bool   `json:"advanced,omitempty"`
}

type NudgeResponse struct {
	OK      bool   `json:"ok"`
	Sent    int    `json:"sent"`
	Message string `json:"message"`
}
