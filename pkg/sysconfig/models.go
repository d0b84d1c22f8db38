package sysconfig

import "time"

// ValueType describes how a config value should be interpreted.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeNumber  ValueType = "number"
	TypeBoolean ValueType = "boolean"
	TypeJSON    ValueType = "json"
)

// Entry is a single key/value setting in the system_configs table.
type Entry struct {
	ID          uint      `gorm:"primaryKey;autoIncrement;column:id"`
	Key         string    `gorm:"column:config_key;type:varchar(100);uniqueIndex:uk_config_key;not null"`
	Value       string    `gorm:"column:config_value;type:text"`
	Type        ValueType `gorm:"column:config_type;type:varchar(20);default:string"`
	Description string    `gorm:"column:description;type:varchar(255)"`
	Group       string    `gorm:"column:group_name;type:varchar(50);index:idx_config_group"`
	IsEncrypted bool      `gorm:"column:is_encrypted;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (Entry) TableName() string { return "system_configs" }
