package model

// Lab is one entry of the lab inventory.
type Lab struct {
	LabID   string `json:"lab_id"`
	LabName string `json:"lab_name"`
	// Ordinal is the 1-based position of the lab in the fetched list.
	Ordinal int `json:"ordinal"`
}

// CabinetStatus classifies a cabinet for display.
type CabinetStatus string

const (
	CabinetCommissioned    CabinetStatus = "commissioned"
	CabinetNotCommissioned CabinetStatus = "not commissioned"
	CabinetInactive        CabinetStatus = "inactive"
)

// Color returns the display color of the status.
func (s CabinetStatus) Color() string {
	switch s {
	case CabinetCommissioned:
		return "green"
	case CabinetNotCommissioned:
		return "amber"
	default:
		return "gray"
	}
}

// CabinetRecord is a cabinet joined from the raw device inventory.
type CabinetRecord struct {
	CabinetID             string       `json:"cabinet_id"`
	DeviceTypeTag         string       `json:"device_type_tag"`
	VariantTag            string       `json:"variant_tag"`
	LabID                 string       `json:"lab_id"`
	IsActive              bool         `json:"is_active"`
	FirstDeviceState      string       `json:"first_device_state"`
	HasCommissionedDevice bool         `json:"has_commissioned_device"`
	Devices               []DeviceInfo `json:"devices"`
}

// Status applies the classification rule: an inactive cabinet is always
// inactive, otherwise commissioning decides.
func (c CabinetRecord) Status() CabinetStatus {
	if !c.IsActive {
		return CabinetInactive
	}
	if c.HasCommissionedDevice {
		return CabinetCommissioned
	}
	return CabinetNotCommissioned
}

// DeviceInfo is a single device installed in a cabinet.
type DeviceInfo struct {
	DeviceType   string `json:"device_type"`
	Manufacturer string `json:"manufacturer"`
	GUID         string `json:"guid"`
	DeviceState  string `json:"device_state"`
	DeviceModel  string `json:"device_model"`
	HostName     string `json:"host_name"`
	HostIP       string `json:"host_ip"`
}

// DeviceStateCommissioned is the device state counted as commissioned.
const DeviceStateCommissioned = "Commissioned"

// Selection is the armed "open" action of the lab picker: everything the set
// detail screen needs, passed by value.
type Selection struct {
	LabID        string       `json:"lab_id"`
	LabName      string       `json:"lab_name"`
	LabOrdinal   int          `json:"lab_ordinal"`
	CabinetID    string       `json:"cabinet_id"`
	Manufacturer string       `json:"manufacturer"`
	Variant      string       `json:"variant"`
	Devices      []DeviceInfo `json:"devices"`
}
