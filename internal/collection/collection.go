// Package collection validates and submits log collection requests.
package collection

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"lablog-console/internal/model"
	"lablog-console/internal/upstream"
)

// Log types offered on the form, keyed by their label.
const (
	LogTypeHAN   = "HAN"
	LogTypeMeter = "Meter"
)

// LogTypeTags maps form labels to the API vocabulary.
var LogTypeTags = map[string]string{
	LogTypeHAN:   "zigbee",
	LogTypeMeter: "meter",
}

// LogFormats is the closed set of formats accepted with HAN logs.
var LogFormats = []string{".pcap", ".dcf", ".cubx"}

// MinDescriptionLength is the shortest accepted task description.
const MinDescriptionLength = 5

const (
	formDateLayout = "2006-01-02"
	formTimeLayout = "15:04"
)

// Form is the log collection form as submitted.
type Form struct {
	TaskDescription string   `form:"task_description"`
	StartDate       string   `form:"start_date"`
	StartTime       string   `form:"start_time"`
	EndDate         string   `form:"end_date"`
	EndTime         string   `form:"end_time"`
	LogTypes        []string `form:"log_types"`
	LogFormat       string   `form:"log_format"`
}

// Has reports whether the log type label is selected.
func (f Form) Has(logType string) bool {
	for _, t := range f.LogTypes {
		if t == logType {
			return true
		}
	}
	return false
}

// Validate applies the form rules in order and returns the first failure as
// a validation error. now is the wall clock at submit time.
func Validate(f Form, now time.Time) error {
	if utf8.RuneCountInString(strings.TrimSpace(f.TaskDescription)) < MinDescriptionLength {
		return upstream.Validation("Task description must be at least %d characters.", MinDescriptionLength)
	}
	if f.StartDate == "" || f.StartTime == "" || f.EndDate == "" || f.EndTime == "" {
		return upstream.Validation("Start and end date and time are required.")
	}
	start, err := parseFormTime(f.StartDate, f.StartTime)
	if err != nil {
		return upstream.Validation("Start date or time is not valid.")
	}
	end, err := parseFormTime(f.EndDate, f.EndTime)
	if err != nil {
		return upstream.Validation("End date or time is not valid.")
	}
	if start.After(now) || end.After(now) {
		return upstream.Validation("Start and end time cannot be in the future.")
	}
	if !start.Before(end) {
		return upstream.Validation("Start time must be earlier than end time.")
	}

	selected := 0
	for _, t := range f.LogTypes {
		if _, ok := LogTypeTags[t]; ok {
			selected++
		}
	}
	if selected == 0 {
		return upstream.Validation("Select at least one log type.")
	}
	if f.Has(LogTypeHAN) && !validFormat(f.LogFormat) {
		return upstream.Validation("Select a log format for HAN logs.")
	}
	return nil
}

func validFormat(format string) bool {
	for _, f := range LogFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Form times are entered and compared as UTC, matching the wire format.
func parseFormTime(date, clock string) (time.Time, error) {
	return time.ParseInLocation(formDateLayout+" "+formTimeLayout, date+" "+clock, time.UTC)
}

// FormatTimestamp renders a form date and time in the wire format with the
// seconds fixed at zero, e.g. "2023-09-28 19:04:00+0000".
func FormatTimestamp(date, clock string) (string, error) {
	t, err := parseFormTime(date, clock)
	if err != nil {
		return "", fmt.Errorf("invalid timestamp %q %q: %w", date, clock, err)
	}
	return t.Format(model.WireTimeLayout), nil
}

// Service submits validated forms.
type Service struct {
	backend upstream.Backend
	newID   func() string
	now     func() time.Time
}

// NewService creates a collection service.
func NewService(backend upstream.Backend) *Service {
	return &Service{backend: backend, newID: uuid.NewString, now: time.Now}
}

// Submit validates the form and starts a log collection for the selected
// cabinet. Nothing is sent when validation fails. It returns the transaction id.
func (s *Service) Submit(ctx context.Context, token string, sel model.Selection, f Form) (string, error) {
	if err := Validate(f, s.now().UTC()); err != nil {
		return "", err
	}
	if sel.LabID == "" || sel.CabinetID == "" {
		return "", upstream.Validation("Select a lab and cabinet first.")
	}

	req, err := buildRequest(s.newID(), sel, f)
	if err != nil {
		return "", err
	}
	if err := s.backend.StartLogCollection(ctx, token, req); err != nil {
		log.Printf("Failed to start log collection %s for cabinet %s: %v", req.TransactionID, sel.CabinetID, err)
		return "", err
	}
	log.Printf("Started log collection %s for lab %s cabinet %s", req.TransactionID, sel.LabID, sel.CabinetID)
	return req.TransactionID, nil
}

func buildRequest(id string, sel model.Selection, f Form) (upstream.StartCollectionRequest, error) {
	start, err := FormatTimestamp(f.StartDate, f.StartTime)
	if err != nil {
		return upstream.StartCollectionRequest{}, upstream.Validation("Start date or time is not valid.")
	}
	stop, err := FormatTimestamp(f.EndDate, f.EndTime)
	if err != nil {
		return upstream.StartCollectionRequest{}, upstream.Validation("End date or time is not valid.")
	}

	req := upstream.StartCollectionRequest{
		TransactionID:   id,
		LabID:           sel.LabID,
		CabinetID:       sel.CabinetID,
		StartTime:       start,
		StopTime:        stop,
		TaskDescription: strings.TrimSpace(f.TaskDescription),
	}
	// Fixed order so the request body is stable.
	for _, label := range []string{LogTypeHAN, LogTypeMeter} {
		if f.Has(label) {
			req.LogTypes = append(req.LogTypes, LogTypeTags[label])
		}
	}
	if f.Has(LogTypeHAN) {
		req.LogFormat = f.LogFormat
	}
	return req, nil
}
