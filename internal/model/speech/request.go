package speech

import "io"

// ASRRequest 语音识别请求
type ASRRequest struct {
	RequestID string    `json:"requestId"`
	AudioData io.Reader `json:"-"`
	Format    string    `json:"format"`   // wav, mp3, webm, ...
	Language  string    `json:"language"` // en-US, zh-CN, ...
}
