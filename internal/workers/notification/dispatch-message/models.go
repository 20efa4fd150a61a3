package dispatchmessage

type Input struct {
	MessageID string `json:"messageId"`
}

type Output struct {
	MessageID     string           `json:"messageId"`
	DispatchState string           `json:"dispatchState"`
	Targets       int              `json:"targets"`
	Delivered     int              `json:"delivered"`
	Skipped       int              `json:"skipped"`
	SkippedTarget []SkippedSummary `json:"skippedTargets,omitempty"`
}

type SkippedSummary struct {
	UserID      string `json:"userId"`
	ChannelID   string `json:"channelId"`
	ChannelType string `json:"channelType"`
	Code        string `json:"code"`
}
