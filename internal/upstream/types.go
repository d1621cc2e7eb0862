package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"lablog-console/internal/model"
)

// FlexString accepts either a JSON string or a JSON number. The inventory
// service is not consistent about id types.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// LoginRequest is the body of the login call.
type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

// LoginResponse is the body returned by a successful login.
type LoginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role,omitempty"`
}

// LabEntry is one row of the lab inventory response.
type LabEntry struct {
	LabID   FlexString `json:"lab_id"`
	LabName string     `json:"lab_name"`
}

// InventoryRequest asks for the cabinets of one lab.
type InventoryRequest struct {
	LabID                 string `json:"lab_id"`
	WithMeterSetInventory bool   `json:"with_meter_set_inventory"`
}

// CabinetEntry is one raw inventory row. Several rows may describe the same cabinet.
type CabinetEntry struct {
	CabinetID  FlexString    `json:"cabinet_id"`
	LabID      FlexString    `json:"lab_id"`
	DeviceType *string       `json:"device_type"`
	Variant    *string       `json:"variant"`
	IsActive   bool          `json:"is_active"`
	MeterSet   []DeviceEntry `json:"meter_set"`
}

// DeviceEntry is a device nested in a cabinet's meter_set.
type DeviceEntry struct {
	DeviceType   string `json:"device_type"`
	Manufacturer string `json:"manufacturer"`
	GUID         string `json:"guid"`
	DeviceState  string `json:"device_state"`
	DeviceModel  string `json:"device_model"`
	HostName     string `json:"host_name"`
	HostIP       string `json:"host_ip"`
}

// ToDevice converts the wire row to the view model.
func (d DeviceEntry) ToDevice() model.DeviceInfo {
	return model.DeviceInfo{
		DeviceType:   d.DeviceType,
		Manufacturer: d.Manufacturer,
		GUID:         d.GUID,
		DeviceState:  d.DeviceState,
		DeviceModel:  d.DeviceModel,
		HostName:     d.HostName,
		HostIP:       d.HostIP,
	}
}

// StartCollectionRequest creates a log collection job.
type StartCollectionRequest struct {
	TransactionID   string   `json:"transaction_id"`
	LabID           string   `json:"lab_id"`
	CabinetID       string   `json:"cabinet_id"`
	StartTime       string   `json:"start_time"`
	StopTime        string   `json:"stop_time"`
	TaskDescription string   `json:"task_description"`
	LogTypes        []string `json:"log_types"`
	LogFormat       string   `json:"log_format,omitempty"`
}

// ListCollectionsRequest is one cursor-paginated query of the job list.
type ListCollectionsRequest struct {
	Filters     map[string]any    `json:"filters"`
	Sort        map[string]string `json:"sort"`
	Limit       int               `json:"limit"`
	NextPageKey *model.Cursor     `json:"next_page_key,omitempty"`
}

// ListCollectionsResponse is one page of jobs. NextPageKey is nil on the last page.
type ListCollectionsResponse struct {
	NextPageKey    *model.Cursor            `json:"next_page_key"`
	LogCollections []model.LogCollectionJob `json:"log_collections"`
}

// InviteRequest invites a new console user.
type InviteRequest struct {
	UserID             string `json:"user_id"`
	NewMemberUserID    string `json:"new_member_user_id"`
	NewMemberRole      string `json:"new_member_role"`
	NewMemberFirstName string `json:"new_member_first_name"`
	NewMemberLastName  string `json:"new_member_last_name"`
}

// ResetPasswordRequest sets a new password for a user.
type ResetPasswordRequest struct {
	UserID          string `json:"user_id"`
	Secret          string `json:"secret"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// DeleteUserRequest removes a user.
type DeleteUserRequest struct {
	UserID string `json:"user_id"`
}

type userRow struct {
	UserID    FlexString `json:"user_id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
}

// decodeUserList accepts a bare array, {"users": [...]} or {"data": [...]}.
func decodeUserList(body []byte) ([]model.User, error) {
	body = bytes.TrimSpace(body)
	var rows []userRow
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode user list: %w", err)
		}
	} else {
		var wrapped struct {
			Users []userRow `json:"users"`
			Data  []userRow `json:"data"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode user list: %w", err)
		}
		rows = wrapped.Users
		if rows == nil {
			rows = wrapped.Data
		}
	}

	users := make([]model.User, 0, len(rows))
	for _, r := range rows {
		id := r.UserID.String()
		if id == "" {
			id = r.Email
		}
		users = append(users, model.User{
			UserID:    id,
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Role:      r.Role,
			Status:    r.Status,
		})
	}
	return users, nil
}
