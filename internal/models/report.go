package models

// ChannelError is the reportable form of a delivery failure.
type ChannelError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NotificationReport summarises one reminder dispatch. It is returned to the
// trigger's caller and logged; it is never persisted.
type NotificationReport struct {
	EmailSent  bool          `json:"emailSent"`
	EmailError *ChannelError `json:"emailError,omitempty"`
	PushSent   bool          `json:"pushSent"`
	PushError  *ChannelError `json:"pushError,omitempty"`
	Debug      ReportDebug   `json:"debug"`
}

type ReportDebug struct {
	DispatchID     string `json:"dispatchId"`
	OrderID        int64  `json:"orderId"`
	EmailSkipped   string `json:"emailSkipped,omitempty"`
	PushReason     string `json:"pushReason,omitempty"`
	PushAttempts   int    `json:"pushAttempts"`
	PushRetries    int    `json:"pushRetries"`
	AdminAttempted bool   `json:"adminAttempted"`
	EmailMillis    int64  `json:"emailMs"`
	PushMillis     int64  `json:"pushMs"`
	AdminMillis    int64  `json:"adminMs"`
}
