package models

// Setting is a global key/value option
type Setting struct {
	Key   string `gorm:"primaryKey;size:50" json:"key"`
	Value string `gorm:"size:200" json:"value"`
}

// TableName specifies the table name for Setting
func (Setting) TableName() string {
	return "settings"
}

// Setting keys
const (
	SettingAutoApproval    = "auto_approval"
	SettingDefaultPassword = "default_password"
	SettingPageSize        = "page_size"
	SettingSystemName      = "system_name"
)

// KnownSettingKeys lists the keys accepted by the settings endpoint
func KnownSettingKeys() []string {
	return []string{SettingAutoApproval, SettingDefaultPassword, SettingPageSize, SettingSystemName}
}

// IsTrue interprets a setting value as a boolean flag
func IsTrue(value string) bool {
	switch value {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
