package models

import (
	"time"
)

// Valve is one tracked piece of instrument/valve equipment
type Valve struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// 基本信息
	Seq          string `gorm:"size:20" json:"seq" label:"序号" group:"基本信息"`
	PlantName    string `gorm:"size:100;index" json:"plant_name" label:"装置名称" group:"基本信息" filter:"true"`
	Tag          string `gorm:"size:50;uniqueIndex;not null" json:"tag" label:"位号" group:"基本信息" filter:"true"`
	Name         string `gorm:"size:100" json:"name" label:"名称" group:"基本信息" filter:"true"`
	Grade        string `gorm:"size:20" json:"grade" label:"设备等级" group:"基本信息" filter:"true"`
	Model        string `gorm:"size:100" json:"model" label:"型号规格" group:"基本信息" filter:"true"`
	Manufacturer string `gorm:"size:100" json:"manufacturer" label:"生产厂家" group:"基本信息" filter:"true"`
	Location     string `gorm:"size:200" json:"location" label:"安装位置及用途" group:"基本信息" filter:"true"`

	// 工艺条件
	ProcessMedium         string `gorm:"size:50" json:"process_medium" label:"工艺条件_介质名称" group:"工艺条件" filter:"true"`
	ProcessDesignTemp     string `gorm:"size:50" json:"process_design_temp" label:"工艺条件_设计温度" group:"工艺条件" filter:"true"`
	ProcessInletPressure  string `gorm:"size:50" json:"process_inlet_pressure" label:"工艺条件_阀前压力" group:"工艺条件" filter:"true"`
	ProcessOutletPressure string `gorm:"size:50" json:"process_outlet_pressure" label:"工艺条件_阀后压力" group:"工艺条件" filter:"true"`

	// 阀体
	BodyNominalSize string `gorm:"size:50" json:"body_nominal_size" label:"阀体_公称通径" group:"阀体" filter:"true"`
	BodyConnection  string `gorm:"size:100" json:"body_connection" label:"阀体_连接方式及规格" group:"阀体" filter:"true"`
	BodyMaterial    string `gorm:"size:50" json:"body_material" label:"阀体_材质" group:"阀体" filter:"true"`

	// 阀内件
	TrimSeatDiameter       string `gorm:"size:50" json:"trim_seat_diameter" label:"阀内件_阀座直径" group:"阀内件" filter:"true"`
	TrimPlugMaterial       string `gorm:"size:50" json:"trim_plug_material" label:"阀内件_阀芯材质" group:"阀内件" filter:"true"`
	TrimSeatMaterial       string `gorm:"size:50" json:"trim_seat_material" label:"阀内件_阀座材质" group:"阀内件" filter:"true"`
	TrimStemMaterial       string `gorm:"size:50" json:"trim_stem_material" label:"阀内件_阀杆材质" group:"阀内件" filter:"true"`
	TrimFlowCharacteristic string `gorm:"size:50" json:"trim_flow_characteristic" label:"阀内件_流量特性" group:"阀内件" filter:"true"`
	TrimLeakageClass       string `gorm:"size:50" json:"trim_leakage_class" label:"阀内件_泄露等级" group:"阀内件" filter:"true"`
	TrimCv                 string `gorm:"size:50" json:"trim_cv" label:"阀内件_Cv值" group:"阀内件" filter:"true"`

	// 执行机构
	ActuatorType         string `gorm:"size:50" json:"actuator_type" label:"执行机构_形式" group:"执行机构" filter:"true"`
	ActuatorModel        string `gorm:"size:100" json:"actuator_model" label:"执行机构_型号规格" group:"执行机构" filter:"true"`
	ActuatorManufacturer string `gorm:"size:100" json:"actuator_manufacturer" label:"执行机构_厂家" group:"执行机构" filter:"true"`
	ActuatorAction       string `gorm:"size:50" json:"actuator_action" label:"执行机构_作用形式" group:"执行机构" filter:"true"`
	ActuatorStroke       string `gorm:"size:50" json:"actuator_stroke" label:"执行机构_行程" group:"执行机构" filter:"true"`
	ActuatorSpringRange  string `gorm:"size:50" json:"actuator_spring_range" label:"执行机构_弹簧范围" group:"执行机构" filter:"true"`
	ActuatorAirSupply    string `gorm:"size:50" json:"actuator_air_supply" label:"执行机构_气源压力" group:"执行机构" filter:"true"`
	ActuatorFailPosition string `gorm:"size:50" json:"actuator_fail_position" label:"执行机构_故障位置" group:"执行机构" filter:"true"`
	ActuatorCloseTime    string `gorm:"size:50" json:"actuator_close_time" label:"执行机构_关阀时间" group:"执行机构" filter:"true"`
	ActuatorOpenTime     string `gorm:"size:50" json:"actuator_open_time" label:"执行机构_开阀时间" group:"执行机构" filter:"true"`

	// 其他
	EquipmentNo string `gorm:"size:50" json:"equipment_no" label:"设备编号" group:"其他" filter:"true"`
	Interlock   string `gorm:"size:10" json:"interlock" label:"是否联锁" group:"其他" filter:"true"`
	Remark      string `gorm:"type:text" json:"remark" label:"备注" group:"其他"`

	// Approval state
	Status     string     `gorm:"size:20;default:draft;index" json:"status"`
	LedgerID   *uint      `gorm:"index" json:"ledger_id"`
	CreatedBy  uint       `gorm:"not null;index" json:"created_by"`
	ApprovedBy *uint      `json:"approved_by"`
	ApprovedAt *time.Time `json:"approved_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `gorm:"index" json:"updated_at"`

	// Associations
	Creator     *User             `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	Approver    *User             `gorm:"foreignKey:ApprovedBy" json:"approver,omitempty"`
	Ledger      *Ledger           `gorm:"foreignKey:LedgerID" json:"ledger,omitempty"`
	Attachments []ValveAttachment `gorm:"foreignKey:ValveID" json:"attachments,omitempty"`
}

// TableName specifies the table name for Valve
func (Valve) TableName() string {
	return "valves"
}

// Valve status constants
const (
	ValveStatusDraft    = "draft"
	ValveStatusPending  = "pending"
	ValveStatusApproved = "approved"
	ValveStatusRejected = "rejected"
)

// ValveStatuses lists every valve status
func ValveStatuses() []string {
	return []string{ValveStatusDraft, ValveStatusPending, ValveStatusApproved, ValveStatusRejected}
}

// IsValidValveStatus reports whether s is a known valve status
func IsValidValveStatus(s string) bool {
	for _, status := range ValveStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// MaySubmit returns true if valve can be sent for review
func (v *Valve) MaySubmit() bool {
	return v.Status == ValveStatusDraft
}

// MayApprove returns true if valve can be approved
func (v *Valve) MayApprove() bool {
	return v.Status == ValveStatusPending
}

// MayReject returns true if valve can be rejected
func (v *Valve) MayReject() bool {
	return v.Status == ValveStatusPending
}

// MayEdit returns true if valve content can be changed
func (v *Valve) MayEdit() bool {
	return v.Status == ValveStatusDraft || v.Status == ValveStatusRejected || v.Status == ValveStatusApproved
}

// MayDelete returns true if valve can be removed
func (v *Valve) MayDelete() bool {
	return v.Status == ValveStatusDraft || v.Status == ValveStatusRejected
}

// IsOwnedBy returns true if userID created the valve
func (v *Valve) IsOwnedBy(userID uint) bool {
	return v.CreatedBy == userID
}

// ValveResponse is the JSON response format for valves
type ValveResponse struct {
	ID           uint                      `json:"id"`
	Fields       map[string]string         `json:"fields"`
	Status       string                    `json:"status"`
	LedgerID     *uint                     `json:"ledger_id"`
	LedgerName   string                    `json:"ledger_name,omitempty"`
	CreatedBy    uint                      `json:"created_by"`
	CreatorName  string                    `json:"creator_name"`
	ApprovedBy   *uint                     `json:"approved_by"`
	ApproverName string                    `json:"approver_name,omitempty"`
	ApprovedAt   *time.Time                `json:"approved_at"`
	Attachments  []ValveAttachmentResponse `json:"attachments"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

// ToResponse converts Valve to ValveResponse
func (v *Valve) ToResponse() ValveResponse {
	resp := ValveResponse{
		ID:          v.ID,
		Fields:      v.FieldMap(),
		Status:      v.Status,
		LedgerID:    v.LedgerID,
		CreatedBy:   v.CreatedBy,
		ApprovedBy:  v.ApprovedBy,
		ApprovedAt:  v.ApprovedAt,
		Attachments: []ValveAttachmentResponse{},
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}

	if v.Creator != nil {
		resp.CreatorName = v.Creator.DisplayName()
	}
	if v.Approver != nil {
		resp.ApproverName = v.Approver.DisplayName()
	}
	if v.Ledger != nil {
		resp.LedgerName = v.Ledger.Name
	}
	for _, att := range v.Attachments {
		resp.Attachments = append(resp.Attachments, att.ToResponse())
	}

	return resp
}
