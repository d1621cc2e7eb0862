package upstream

import (
	"context"

	"lablog-console/internal/model"
)

// Backend is the data source every screen depends on. The HTTP Client is the
// production implementation; fixture mode swaps in generated data here and
// nowhere else.
type Backend interface {
	Login(ctx context.Context, userID, password string) (*LoginResponse, error)
	Logout(ctx context.Context, token string) error
	ListUsers(ctx context.Context, token string) ([]model.User, error)
	InviteUser(ctx context.Context, token string, req InviteRequest) (string, error)
	ResetPassword(ctx context.Context, token string, req ResetPasswordRequest) error
	DeleteUser(ctx context.Context, token, userID string) error
	ListLabs(ctx context.Context, token string) ([]LabEntry, error)
	GetInventory(ctx context.Context, token, labID string) ([]CabinetEntry, error)
	StartLogCollection(ctx context.Context, token string, req StartCollectionRequest) error
	ListLogCollections(ctx context.Context, token string, req ListCollectionsRequest) (*ListCollectionsResponse, error)
}

var _ Backend = (*Client)(nil)
