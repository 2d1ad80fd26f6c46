package speech

// SpeechConfig 语音识别服务配置
type SpeechConfig struct {
	AppID          string `json:"appId"`
	AccessToken    string `json:"accessToken"`
	APIKey         string `json:"apiKey,omitempty"`
	BaseURL        string `json:"baseUrl"`
	ConcurrentMode bool   `json:"concurrentMode"` // false 为小时版资源

	ASRModel    string `json:"asrModel"`
	ASRLanguage string `json:"asrLanguage"`

	Timeout int `json:"timeout"` // seconds
}
