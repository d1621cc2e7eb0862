// Package fixture provides generated in-memory data for demo mode. It is
// selected once at startup and is never used as a fallback for a failing API.
package fixture

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lablog-console/internal/model"
	"lablog-console/internal/upstream"
)

// DemoPassword is accepted for every demo account.
const DemoPassword = "demo"

var (
	labNames      = []string{"Austin Lab", "Bangalore Lab", "Eindhoven Lab"}
	manufacturers = []string{"Itron", "Landis", "Aclara"}
	variants      = []string{"Gen4", "Gen5"}
	logStates     = []struct {
		code int
		text string
	}{
		{105, "QUEUED"}, {106, "COLLECTING"}, {107, "UPLOADING"}, {108, "COMPLETED"}, {109, "FAILED"},
	}
)

// Source implements upstream.Backend with generated data.
type Source struct {
	mu    sync.Mutex
	rng   *rand.Rand
	users []model.User
	jobs  []model.LogCollectionJob
	now   func() time.Time
}

var _ upstream.Backend = (*Source)(nil)

// NewSource generates a deterministic data set for the seed.
func NewSource(seed int64) *Source {
	s := &Source{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
		users: []model.User{
			{UserID: "admin@lab.local", FirstName: "Demo", LastName: "Admin", Role: "admin", Status: "active"},
			{UserID: "operator@lab.local", FirstName: "Demo", LastName: "Operator", Role: "user", Status: "active"},
		},
	}
	base := s.now().UTC().Truncate(time.Minute)
	for i := 0; i < 35; i++ {
		state := logStates[s.rng.Intn(len(logStates))]
		start := base.Add(-time.Duration(i+2) * time.Hour)
		s.jobs = append(s.jobs, model.LogCollectionJob{
			TransactionID:   uuid.NewString(),
			LabID:           strconv.Itoa(1 + i%len(labNames)),
			CabinetID:       fmt.Sprintf("CAB-%03d", 100+i%12),
			DeviceTypeTag:   manufacturers[i%len(manufacturers)],
			StartTime:       start.Format(model.WireTimeLayout),
			StopTime:        start.Add(time.Hour).Format(model.WireTimeLayout),
			SubmitTime:      start.Add(90 * time.Minute).Format(model.WireTimeLayout),
			TaskDescription: fmt.Sprintf("Demo collection #%d", i+1),
			StatusCode:      state.code,
			StatusText:      state.text,
			LogTypes:        []string{"meter"},
		})
	}
	return s
}

func (s *Source) Login(_ context.Context, userID, password string) (*upstream.LoginResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.UserID, userID) && password == DemoPassword {
			return &upstream.LoginResponse{Token: "demo-" + uuid.NewString(), Role: u.Role}, nil
		}
	}
	return nil, &upstream.Error{Kind: upstream.KindAuth, Status: 401, Message: "Invalid user id or password."}
}

func (s *Source) Logout(context.Context, string) error { return nil }

func (s *Source) ListUsers(context.Context, string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.User, len(s.users))
	copy(out, s.users)
	return out, nil
}

func (s *Source) InviteUser(_ context.Context, _ string, req upstream.InviteRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.UserID, req.NewMemberUserID) {
			return "", &upstream.Error{Kind: upstream.KindServer, Status: 400, Message: "User already exists.", Detail: "User already exists."}
		}
	}
	s.users = append(s.users, model.User{
		UserID:    req.NewMemberUserID,
		FirstName: req.NewMemberFirstName,
		LastName:  req.NewMemberLastName,
		Role:      req.NewMemberRole,
		Status:    "invited",
	})
	return "Invitation sent to " + req.NewMemberUserID, nil
}

func (s *Source) ResetPassword(context.Context, string, upstream.ResetPasswordRequest) error {
	return nil
}

func (s *Source) DeleteUser(_ context.Context, _ string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, u := range s.users {
		if u.UserID == userID {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return nil
		}
	}
	return &upstream.Error{Kind: upstream.KindConfig, Status: 404, Message: "User not found."}
}

func (s *Source) ListLabs(context.Context, string) ([]upstream.LabEntry, error) {
	labs := make([]upstream.LabEntry, 0, len(labNames))
	for i, name := range labNames {
		labs = append(labs, upstream.LabEntry{LabID: upstream.FlexString(strconv.Itoa(i + 1)), LabName: name})
	}
	return labs, nil
}

func (s *Source) GetInventory(_ context.Context, _ string, labID string) ([]upstream.CabinetEntry, error) {
	n, err := strconv.Atoi(labID)
	if err != nil || n < 1 || n > len(labNames) {
		return nil, &upstream.Error{Kind: upstream.KindServer, Status: 400, Message: "Unknown lab."}
	}

	var out []upstream.CabinetEntry
	for c := 0; c < 6; c++ {
		manufacturer := manufacturers[(n+c)%len(manufacturers)]
		variant := variants[c%len(variants)]
		entry := upstream.CabinetEntry{
			CabinetID:  upstream.FlexString(fmt.Sprintf("CAB-%d%02d", n, c+1)),
			LabID:      upstream.FlexString(labID),
			DeviceType: &manufacturer,
			Variant:    &variant,
			IsActive:   c%5 != 4,
		}
		for d := 0; d < 3; d++ {
			state := "Installed"
			if (c+d)%3 == 0 {
				state = model.DeviceStateCommissioned
			}
			if c == 1 {
				state = "Installed"
			}
			entry.MeterSet = append(entry.MeterSet, upstream.DeviceEntry{
				DeviceType:   "meter",
				Manufacturer: manufacturer,
				GUID:         fmt.Sprintf("%d-%d-%d", n, c, d),
				DeviceState:  state,
				DeviceModel:  variant + "-M",
				HostName:     fmt.Sprintf("lab%d-cab%d-host%d", n, c+1, d+1),
				HostIP:       fmt.Sprintf("10.%d.%d.%d", n, c+1, d+10),
			})
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Source) StartLogCollection(_ context.Context, _ string, req upstream.StartCollectionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := model.LogCollectionJob{
		TransactionID:   req.TransactionID,
		LabID:           req.LabID,
		CabinetID:       req.CabinetID,
		StartTime:       req.StartTime,
		StopTime:        req.StopTime,
		SubmitTime:      s.now().UTC().Format(model.WireTimeLayout),
		TaskDescription: req.TaskDescription,
		StatusCode:      model.StatusQueued,
		StatusText:      "QUEUED",
		LogTypes:        req.LogTypes,
	}
	s.jobs = append([]model.LogCollectionJob{job}, s.jobs...)
	return nil
}

// ListLogCollections pages through the jobs, newest first. The cursor id is
// the offset of the next page.
func (s *Source) ListLogCollections(_ context.Context, _ string, req upstream.ListCollectionsRequest) (*upstream.ListCollectionsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := 0
	if req.NextPageKey != nil {
		n, err := strconv.Atoi(req.NextPageKey.ID)
		if err != nil || n < 0 {
			return nil, &upstream.Error{Kind: upstream.KindValidation, Status: 422, Message: "Invalid page key."}
		}
		offset = n
	}
	if offset > len(s.jobs) {
		offset = len(s.jobs)
	}
	end := offset + limit
	if end > len(s.jobs) {
		end = len(s.jobs)
	}

	resp := &upstream.ListCollectionsResponse{
		LogCollections: append([]model.LogCollectionJob(nil), s.jobs[offset:end]...),
	}
	if end < len(s.jobs) {
		resp.NextPageKey = &model.Cursor{ID: strconv.Itoa(end)}
	}
	return resp, nil
}
