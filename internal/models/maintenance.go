package models

import (
	"time"
)

// MaintenanceRecord documents one overhaul or repair of a valve
type MaintenanceRecord struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ValveID       uint       `gorm:"not null;index" json:"valve_id"`
	Center        string     `gorm:"size:100" json:"center"`                 // 所属中心
	EquipmentTag  string     `gorm:"size:50;index" json:"equipment_tag"`     // 设备位号
	EquipmentName string     `gorm:"size:100" json:"equipment_name"`         // 设备名称
	MaintainedAt  *time.Time `gorm:"index" json:"maintained_at"`             // 检修时间
	Content       string     `gorm:"type:text" json:"content"`               // 检修内容
	Personnel     string     `gorm:"size:50" json:"personnel"`               // 检修人员
	Type          string     `gorm:"size:50;index" json:"type"`              // 类型
	CreatedBy     uint       `gorm:"index" json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// Associations
	Creator *User `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
}

// TableName specifies the table name for MaintenanceRecord
func (MaintenanceRecord) TableName() string {
	return "maintenance_records"
}

// MaintenanceExportHeaders are the spreadsheet column labels, in order
var MaintenanceExportHeaders = []string{"所属中心", "设备位号", "设备名称", "检修时间", "检修内容", "检修人员", "类型"}

// ExportRow returns the record values aligned with MaintenanceExportHeaders
func (m *MaintenanceRecord) ExportRow() []string {
	when := ""
	if m.MaintainedAt != nil {
		when = m.MaintainedAt.Format("2006-01-02 15:04")
	}
	return []string{m.Center, m.EquipmentTag, m.EquipmentName, when, m.Content, m.Personnel, m.Type}
}
