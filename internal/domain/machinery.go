package domain

import "time"

// MachineryStatus is the operational state of a machine.
type MachineryStatus string

// Machinery statuses.
const (
	MachineryActive      MachineryStatus = "active"
	MachineryMaintenance MachineryStatus = "maintenance"
	MachineryInactive    MachineryStatus = "inactive"
)

// IsValid reports whether s is a known status.
func (s MachineryStatus) IsValid() bool {
	switch s {
	case MachineryActive, MachineryMaintenance, MachineryInactive:
		return true
	}
	return false
}

// Machinery is a machine movements can be attributed to.
type Machinery struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Model     string          `json:"model"`
	Status    MachineryStatus `json:"status"`
	Location  string          `json:"location"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
