package directory

import (
	"strings"
	"time"
)

// Employee is the local mirror of a roster entry. Mobile and DingTalkUserID
// are maintained locally and never overwritten by reconciliation.
type Employee struct {
	ID                 uint       `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	SfUserID           string     `gorm:"column:sf_user_id;type:varchar(50);uniqueIndex:uk_employee_sf_user;not null" json:"sfUserId"`
	MpNumber           string     `gorm:"column:mp_number;type:varchar(50)" json:"mpNumber,omitempty"`
	Password           string     `gorm:"column:password;type:varchar(255)" json:"-"`
	Name               string     `gorm:"column:name;type:varchar(100);index:idx_employee_name" json:"name"`
	DepartName         string     `gorm:"column:depart_name_cn;type:varchar(200);index:idx_employee_dept" json:"departName,omitempty"`
	SupDep             string     `gorm:"column:sup_dep;type:varchar(200)" json:"supDep,omitempty"`
	SupervisorSfUserID string     `gorm:"column:supervisor_sf_user_id;type:varchar(50)" json:"supervisorSfUserId,omitempty"`
	JobName            string     `gorm:"column:job_name_cn;type:varchar(200)" json:"jobName,omitempty"`
	PositionName       string     `gorm:"column:position_name_cn;type:varchar(200)" json:"positionName,omitempty"`
	Role               string     `gorm:"column:role;type:varchar(50)" json:"role,omitempty"`
	IsFrontlineWorker  bool       `gorm:"column:is_frontline_worker;default:false" json:"isFrontlineWorker"`
	Email              string     `gorm:"column:email;type:varchar(100)" json:"email,omitempty"`
	Mobile             string     `gorm:"column:mobile;type:varchar(20)" json:"mobile,omitempty"`
	DingTalkUserID     string     `gorm:"column:dingtalk_userid;type:varchar(100)" json:"dingtalkUserId,omitempty"`
	IsActive           bool       `gorm:"column:is_active;index:idx_employee_active" json:"isActive"`
	SyncTime           *time.Time `gorm:"column:sync_time" json:"syncTime,omitempty"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName returns the GORM table name.
func (Employee) TableName() string { return "employees" }

// Department is derived from the free-text department fields of the roster.
type Department struct {
	ID            uint      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Name          string    `gorm:"column:dept_name;type:varchar(200);uniqueIndex:uk_dept_name;not null" json:"name"`
	ParentName    string    `gorm:"column:parent_dept_name;type:varchar(200)" json:"parentName,omitempty"`
	ParentID      *uint     `gorm:"column:parent_id;index:idx_dept_parent" json:"parentId,omitempty"`
	Level         int       `gorm:"column:dept_level;default:1" json:"level"`
	Path          string    `gorm:"column:dept_path;type:varchar(1000)" json:"path"`
	EmployeeCount int       `gorm:"column:employee_count;default:0" json:"employeeCount"`
	SortOrder     int       `gorm:"column:sort_order;default:0" json:"sortOrder"`
	IsActive      bool      `gorm:"column:is_active" json:"isActive"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName returns the GORM table name.
func (Department) TableName() string { return "departments" }

// RosterEntry is one row of the external read-only roster. The remote table
// carries no mobile or messaging id.
type RosterEntry struct {
	SfUserID           string `gorm:"column:sf_user_id" json:"sfUserId"`
	MpNumber           string `gorm:"column:mp_number" json:"mpNumber"`
	Password           string `gorm:"column:pwd" json:"-"`
	Name               string `gorm:"column:name" json:"name"`
	DepartName         string `gorm:"column:depart_name_cn" json:"departName"`
	SupDep             string `gorm:"column:sup_dep" json:"supDep"`
	SupervisorSfUserID string `gorm:"column:supervisor_sf_user_id" json:"supervisorSfUserId"`
	JobName            string `gorm:"column:job_name_cn" json:"jobName"`
	PositionName       string `gorm:"column:position_name_cn" json:"positionName"`
	Role               string `gorm:"column:role" json:"role"`
	IsFrontlineWorker  string `gorm:"column:is_frontline_worker" json:"isFrontlineWorker"`
	Email              string `gorm:"column:email" json:"email"`
}

// Key returns the normalized domain account id used to match local rows.
func (r RosterEntry) Key() string {
	return strings.TrimSpace(r.SfUserID)
}

// Frontline maps the roster's "Y"/other encoding onto a boolean.
func (r RosterEntry) Frontline() bool {
	return strings.EqualFold(strings.TrimSpace(r.IsFrontlineWorker), "Y")
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	RunID       string    `json:"runId"`
	Added       int       `json:"added"`
	Updated     int       `json:"updated"`
	Deactivated int       `json:"deactivated"`
	Skipped     int       `json:"skipped"`
	Departments int       `json:"departments"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	DurationMs  int64     `json:"durationMs"`
}

// EmployeeFilter narrows employee listings. Zero values are ignored.
type EmployeeFilter struct {
	Name       string // substring match
	DepartName string
	ActiveOnly bool
	Frontline  *bool
}

// DepartmentFilter narrows department listings. Zero values are ignored.
type DepartmentFilter struct {
	Name       string // substring match
	Level      int
	ActiveOnly bool
}
