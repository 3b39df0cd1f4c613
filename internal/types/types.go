package types

import "time"

// AccountCredentials is one target account's access key pair, read from the
// parameter store. Immutable once constructed.
type AccountCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// IsZero reports whether no credentials were configured, in which case the
// ambient credential chain of the running environment is used instead.
func (c AccountCredentials) IsZero() bool {
	return c.AccessKeyID == "" && c.SecretAccessKey == ""
}

// AccountTarget is one monitored account: a logical name (the key segment it
// was stored under) plus its credential pair.
type AccountTarget struct {
	Name        string
	Credentials AccountCredentials
}

// LineItem is one service category's spend within a cost summary.
type LineItem struct {
	Label           string
	AmountFormatted string
	AmountRaw       float64
}

// CostSummary holds one account's current-month spend grouped by service.
// TotalAmount always equals the sum of the line items' raw amounts; categories
// with a non-positive amount appear in neither.
type CostSummary struct {
	PeriodStart    string
	PeriodEnd      string
	TotalAmount    float64
	TotalFormatted string
	LineItems      []LineItem
}

// Field is one title/value pair in an outbound chat message.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// NotificationMessage is the chat payload for one account, built immediately
// before posting.
type NotificationMessage struct {
	Headline string
	Fields   []Field
}

// RunStatus describes the outcome of one watch invocation, exposed by the
// scheduler's status endpoint.
type RunStatus struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}
