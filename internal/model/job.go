package model

// LogCollectionJob is a server-owned snapshot of one log collection request.
type LogCollectionJob struct {
	TransactionID   string   `json:"transaction_id"`
	LabID           string   `json:"lab_id"`
	CabinetID       string   `json:"cabinet_id"`
	DeviceTypeTag   string   `json:"device_type_tag"`
	StartTime       string   `json:"start_time"`
	StopTime        string   `json:"stop_time"`
	SubmitTime      string   `json:"submit_time"`
	TaskDescription string   `json:"task_description"`
	StatusCode      int      `json:"status_code"`
	StatusText      string   `json:"status"`
	LogTypes        []string `json:"log_types"`
}

// Job status codes with a fixed display text.
const (
	StatusQueued     = 105
	StatusCollecting = 106
	StatusUploading  = 107
	StatusReady      = 108
)

// StatusText resolves the text shown for a job status code.
func StatusText(code int, raw string) string {
	switch code {
	case StatusQueued, StatusCollecting, StatusUploading:
		return "In Progress"
	case StatusReady:
		return "Ready for download"
	default:
		return raw
	}
}

// DisplayStatus is StatusText applied to the job.
func (j LogCollectionJob) DisplayStatus() string {
	return StatusText(j.StatusCode, j.StatusText)
}

// Cursor is the opaque pagination token issued by the job list endpoint.
type Cursor struct {
	ID string `json:"id"`
}

// WireTimeLayout is the timestamp format of the log collection API. Times are
// always sent in UTC, so the offset renders as +0000.
const WireTimeLayout = "2006-01-02 15:04:05-0700"
