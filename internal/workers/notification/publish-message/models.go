package publishmessage

type Input struct {
	CategoryID string `json:"categoryId"`
	Message    string `json:"message"`
}

type Output struct {
	MessageID     string `json:"messageId"`
	DispatchState string `json:"dispatchState"`
	Delivered     int    `json:"delivered"`
	Skipped       int    `json:"skipped"`
	DispatchError string `json:"dispatchError,omitempty"`
}
