package api

type ExplainRequest struct {
	Log      string  `json:"log"`
	Template *string `json:"template,omitempty"`
	Stream   bool    `json:"stream,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type ExplainResponse struct {
	ID          string  `json:"id"`
	Object      string  `json:"object"`
	CreatedAt   int64   `json:"created_at"`
	Explanation string  `json:"explanation"`
	Stop        string  `json:"stop"`
	Truncated   bool    `json:"truncated"`
	Device      string  `json:"device"`
	Usage       Usage   `json:"usage"`
	DurationMS  int64   `json:"duration_ms"`
	TPS         float64 `json:"tokens_per_second"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Device  string `json:"device"`
	Version string `json:"version"`
}

type HistoryItem struct {
	ID          string `json:"id"`
	CreatedAt   int64  `json:"created_at"`
	Source      string `json:"source"`
	Excerpt     string `json:"excerpt"`
	Model       string `json:"model"`
	Stop        string `json:"stop"`
	OutputToks  int    `json:"output_tokens"`
	Explanation string `json:"explanation,omitempty"`
	Error       string `json:"error,omitempty"`
}

type HistoryList struct {
	Object string        `json:"object"`
	Data   []HistoryItem `json:"data"`
}
