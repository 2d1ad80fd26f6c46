package speech

import "time"

// ASRResponse 语音识别响应
type ASRResponse struct {
	RequestID  string    `json:"requestId,omitempty"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Duration   int64     `json:"duration"` // milliseconds
	CreatedAt  time.Time `json:"createdAt"`
}
