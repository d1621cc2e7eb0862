// Package admin implements the user management screen.
//
// The role checks here only decide what the screen offers. The upstream
// service is the authority on who may do what. Both Invite and Delete are
// offered to administrators only; the invite guard is a choice of this
// console, the service itself does not require it.
package admin

import (
	"context"
	"errors"
	"log"
	"net/mail"
	"strings"

	"lablog-console/internal/model"
	"lablog-console/internal/upstream"
)

var (
	// ErrNotAdmin rejects destructive actions for non-admin sessions.
	ErrNotAdmin = errors.New("only administrators can manage users")
	// ErrNotConfirmed rejects a delete the operator did not confirm.
	ErrNotConfirmed = errors.New("please confirm the deletion")
)

// InviteForm is the invite dialog as submitted.
type InviteForm struct {
	Email     string `form:"email"`
	FirstName string `form:"first_name"`
	LastName  string `form:"last_name"`
	Role      string `form:"role"`
}

// Fallback messages for invite outcomes the service did not explain.
var inviteFallbacks = map[int]string{
	200: "Invitation sent.",
	400: "The invitation could not be sent. The user may already exist.",
	404: "The invite service could not be found.",
	422: "Please check the name, email and role of the new user.",
	500: "The server failed to send the invitation. Please try again later.",
}

// Service wraps the user management endpoints.
type Service struct {
	backend     upstream.Backend
	resetSecret string
}

// NewService creates the admin service. resetSecret is sent with every
// password reset request.
func NewService(backend upstream.Backend, resetSecret string) *Service {
	return &Service{backend: backend, resetSecret: resetSecret}
}

// List returns the users known to the service.
func (s *Service) List(ctx context.Context, sess model.Session) ([]model.User, error) {
	users, err := s.backend.ListUsers(ctx, sess.Token)
	if err != nil {
		log.Printf("Failed to list users for %s: %v", sess.UserEmail, err)
		return []model.User{}, err
	}
	return users, nil
}

// Invite sends an invitation and returns the message to show on success.
func (s *Service) Invite(ctx context.Context, sess model.Session, f InviteForm) (string, error) {
	if !sess.IsAdmin() {
		return "", ErrNotAdmin
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(f.Email))
	if err != nil {
		return "", upstream.Validation("Please enter a valid email address.")
	}
	// Only the bare address is sent; a display name is dropped.
	email := addr.Address
	if strings.TrimSpace(f.FirstName) == "" || strings.TrimSpace(f.LastName) == "" {
		return "", upstream.Validation("First and last name are required.")
	}
	role := strings.ToLower(strings.TrimSpace(f.Role))
	if !model.ValidRoles[role] {
		return "", upstream.Validation("Role must be admin or user.")
	}

	msg, err := s.backend.InviteUser(ctx, sess.Token, upstream.InviteRequest{
		UserID:             sess.UserEmail,
		NewMemberUserID:    email,
		NewMemberRole:      role,
		NewMemberFirstName: strings.TrimSpace(f.FirstName),
		NewMemberLastName:  strings.TrimSpace(f.LastName),
	})
	if err != nil {
		log.Printf("Invite of %s by %s failed: %v", email, sess.UserEmail, err)
		return "", inviteError(err)
	}
	if msg == "" {
		msg = inviteFallbacks[200]
	}
	return msg, nil
}

// inviteError rewrites the message of the invite statuses that have their
// own wording. Other failures keep the classified message.
func inviteError(err error) error {
	var ue *upstream.Error
	if !errors.As(err, &ue) {
		return err
	}
	fallback, ok := inviteFallbacks[ue.Status]
	if !ok || ue.Status == 200 {
		return err
	}
	msg := ue.Detail
	if msg == "" {
		msg = fallback
	}
	return &upstream.Error{Kind: ue.Kind, Status: ue.Status, Detail: ue.Detail, Message: msg, Err: err}
}

// Delete removes a user. The acting session must be an admin and the
// operator must have confirmed.
func (s *Service) Delete(ctx context.Context, sess model.Session, userID string, confirmed bool) error {
	if !sess.IsAdmin() {
		return ErrNotAdmin
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return upstream.Validation("No user selected.")
	}
	if strings.EqualFold(userID, sess.UserEmail) {
		return upstream.Validation("You cannot delete your own account.")
	}
	if !confirmed {
		return ErrNotConfirmed
	}
	if err := s.backend.DeleteUser(ctx, sess.Token, userID); err != nil {
		log.Printf("Delete of %s by %s failed: %v", userID, sess.UserEmail, err)
		return err
	}
	log.Printf("User %s deleted by %s", userID, sess.UserEmail)
	return nil
}

// ResetPassword sets a new password for the signed in user.
func (s *Service) ResetPassword(ctx context.Context, sess model.Session, newPassword, confirmPassword string) error {
	if newPassword == "" || confirmPassword == "" {
		return upstream.Validation("Please enter and confirm the new password.")
	}
	if newPassword != confirmPassword {
		return upstream.Validation("The passwords do not match.")
	}
	err := s.backend.ResetPassword(ctx, sess.Token, upstream.ResetPasswordRequest{
		UserID:          sess.UserEmail,
		Secret:          s.resetSecret,
		NewPassword:     newPassword,
		ConfirmPassword: confirmPassword,
	})
	if err != nil {
		log.Printf("Password reset for %s failed: %v", sess.UserEmail, err)
		return err
	}
	return nil
}
