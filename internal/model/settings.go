package model

// ConnectionSettings locate and authenticate against the SARH directory.
// They are edited by administrators at runtime and read on every call.
type ConnectionSettings struct {
	BaseURL     string `json:"baseurl"`
	APIUsername string `json:"apiusername"`
	APIPassword string `json:"-"`
}

// Complete reports whether every connection setting is present.
func (c ConnectionSettings) Complete() bool {
	return c.BaseURL != "" && c.APIUsername != "" && c.APIPassword != ""
}

// NotificationSettings control the administrator report.
type NotificationSettings struct {
	Enabled  bool    `json:"enable_admin_notifications"`
	AdminIDs []int64 `json:"notification_admin_ids"`
}
