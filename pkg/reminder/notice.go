package reminder

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Kind distinguishes upcoming-expiry notices from overdue ones.
type Kind string

const (
	KindExpiring Kind = "expiring"
	KindExpired  Kind = "expired"
)

// Notice is one reminder addressed to an employee about one certificate.
// DaysLeft is negative once the certificate has expired.
type Notice struct {
	Kind           Kind      `json:"kind"`
	EmployeeID     uint      `json:"employeeId"`
	SfUserID       string    `json:"sfUserId"`
	EmployeeName   string    `json:"employeeName"`
	DepartName     string    `json:"departName,omitempty"`
	Mobile         string    `json:"mobile,omitempty"`
	Email          string    `json:"email,omitempty"`
	DingTalkUserID string    `json:"dingtalkUserId,omitempty"`
	CertificateID  uint      `json:"certificateId"`
	CertNumber     string    `json:"certNumber"`
	ExpiryDate     time.Time `json:"expiryDate"`
	DaysLeft       int       `json:"daysLeft"`
	MissingContact bool      `json:"missingContact"`
}

// Notifier delivers a notice over some channel.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notice) error { return f(ctx, n) }

// LogNotifier writes notices to a logger instead of a messaging channel.
type LogNotifier struct {
	Logger *zap.Logger
}

// Notify logs the notice.
func (l LogNotifier) Notify(_ context.Context, n Notice) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fields := []zap.Field{
		zap.String("kind", string(n.Kind)),
		zap.String("sfUserId", n.SfUserID),
		zap.String("employee", n.EmployeeName),
		zap.String("certNumber", n.CertNumber),
		zap.Int("daysLeft", n.DaysLeft),
	}
	if n.MissingContact {
		logger.Warn("reminder for employee without mobile", fields...)
		return nil
	}
	logger.Info("reminder", append(fields, zap.String("mobile", n.Mobile))...)
	return nil
}
