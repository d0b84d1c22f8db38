package certificate

import (
	"time"
)

// Certificate is one submitted or approved health-certificate version.
type Certificate struct {
	ID               uint       `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	CertNumber       string     `gorm:"column:cert_number;type:varchar(50);index:idx_cert_number;not null" json:"certNumber"`
	EmployeeID       uint       `gorm:"column:employee_id;index:idx_cert_employee;not null" json:"employeeId"`
	SfUserID         string     `gorm:"column:sf_user_id;type:varchar(50);index:idx_cert_sf_user" json:"sfUserId"`
	EmployeeName     string     `gorm:"column:employee_name;type:varchar(100)" json:"employeeName"`
	Gender           string     `gorm:"column:gender;type:varchar(10)" json:"gender,omitempty"`
	Age              *int       `gorm:"column:age" json:"age,omitempty"`
	IDCard           string     `gorm:"column:id_card;type:varchar(30)" json:"idCard,omitempty"`
	Category         string     `gorm:"column:category;type:varchar(100)" json:"category,omitempty"`
	IssueDate        time.Time  `gorm:"column:issue_date;type:date;not null" json:"issueDate"`
	ExpiryDate       time.Time  `gorm:"column:expiry_date;type:date;index:idx_cert_expiry;not null" json:"expiryDate"`
	IssuingAuthority string     `gorm:"column:issuing_authority;type:varchar(200)" json:"issuingAuthority,omitempty"`
	ImagePath        string     `gorm:"column:image_path;type:varchar(500)" json:"imagePath"`
	OCRRawData       string     `gorm:"column:ocr_raw_data;type:text" json:"-"`
	Status           Status     `gorm:"column:status;type:varchar(20);index:idx_cert_status;not null;default:pending" json:"status"`
	SubmitTime       *time.Time `gorm:"column:submit_time" json:"submitTime,omitempty"`
	AuditTime        *time.Time `gorm:"column:audit_time" json:"auditTime,omitempty"`
	AuditorID        *uint      `gorm:"column:auditor_id" json:"auditorId,omitempty"`
	AuditorName      string     `gorm:"column:auditor_name;type:varchar(100)" json:"auditorName,omitempty"`
	RejectReason     string     `gorm:"column:reject_reason;type:varchar(500)" json:"rejectReason,omitempty"`
	IsCurrent        bool       `gorm:"column:is_current;index:idx_cert_current;not null;default:false" json:"isCurrent"`
	Version          int        `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName returns the GORM table name.
func (Certificate) TableName() string { return "health_certificates" }

// AuditLock marks a certificate as being reviewed by one admin.
// A row whose ExpiresAt has passed is inert and treated as absent.
type AuditLock struct {
	ID        uint      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	CertID    uint      `gorm:"column:cert_id;uniqueIndex:uk_lock_cert;not null" json:"certId"`
	AdminID   uint      `gorm:"column:admin_id;not null" json:"adminId"`
	AdminName string    `gorm:"column:admin_name;type:varchar(100)" json:"adminName"`
	LockedAt  time.Time `gorm:"column:locked_at;not null" json:"lockedAt"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null" json:"expiresAt"`
}

// TableName returns the GORM table name.
func (AuditLock) TableName() string { return "audit_locks" }

// ActiveAt reports whether the lock is still in force at t.
func (l *AuditLock) ActiveAt(t time.Time) bool {
	return l != nil && l.ExpiresAt.After(t)
}

// Submission is the employee-provided payload for SubmitCertificate.
type Submission struct {
	CertNumber       string     `json:"certNumber"`
	EmployeeName     string     `json:"employeeName"`
	Gender           string     `json:"gender,omitempty"`
	Age              *int       `json:"age,omitempty"`
	IDCard           string     `json:"idCard,omitempty"`
	Category         string     `json:"category,omitempty"`
	IssueDate        *time.Time `json:"issueDate"`
	ExpiryDate       *time.Time `json:"expiryDate"`
	IssuingAuthority string     `json:"issuingAuthority,omitempty"`
	ImagePath        string     `json:"imagePath"`
	OCRRawData       string     `json:"ocrRawData,omitempty"`
}

// Filter narrows certificate listings. Zero values are ignored.
type Filter struct {
	Status       Status
	EmployeeName string // substring match
	CertNumber   string // substring match
	SfUserID     string
	EmployeeID   uint
	CurrentOnly  bool
}

// Page selects a window of results. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalize() Page {
	if p.Number <= 0 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = 20
	}
	if p.Size > 100 {
		p.Size = 100
	}
	return p
}

func (p Page) offset() int {
	return (p.Number - 1) * p.Size
}
