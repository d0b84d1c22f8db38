package certificate

// Status is the stored lifecycle state of a certificate row.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	// StatusExpired is never written by the lifecycle manager. Expiry is
	// derived from expiry_date at query time; the value exists for rows
	// imported from older data.
	StatusExpired Status = "expired"
)

// Action is an admin review decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ExpiryClass is the query-time classification of a certificate's expiry date.
type ExpiryClass string

const (
	ExpiryValid    ExpiryClass = "valid"
	ExpiryExpiring ExpiryClass = "expiring"
	ExpiryExpired  ExpiryClass = "expired"
)
