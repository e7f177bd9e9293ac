// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

// Package account manages user registration, authentication, and
// administration. Demoting or deleting the last administrator is
// rejected so the admin area can never become unreachable.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ferabreu/classifieds-go/internal/auth"
	"github.com/ferabreu/classifieds-go/internal/listing"
	"github.com/ferabreu/classifieds-go/internal/model"
	"github.com/ferabreu/classifieds-go/internal/store"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email address is already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrNameRequired       = errors.New("first and last name are required")
	ErrNameTooLong        = errors.New("names cannot exceed 64 characters")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrLastAdmin          = errors.New("cannot remove the last administrator")
	ErrForbidden          = errors.New("not allowed to manage this account")
)

const (
	minPasswordLength = 6
	maxNameLength     = 64
)

// Service provides user account operations.
type Service struct {
	queries  *store.Queries
	listings *listing.Coordinator
}

// NewService creates an account service. The listing coordinator is
// used to remove a user's listings, files included, when the account is
// deleted.
func NewService(db *sql.DB, listings *listing.Coordinator) *Service {
	return &Service{
		queries:  store.New(db),
		listings: listings,
	}
}

// Input holds the fields of a registration or profile form.
type Input struct {
	Email     string
	FirstName string
	LastName  string
	Password  string // Empty on profile edits to keep the current password
	IsAdmin   bool   // Only honored for admin actors
}

func validateProfile(in *Input) error {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if _, err := mail.ParseAddress(in.Email); err != nil {
		return ErrInvalidEmail
	}
	if in.FirstName == "" || in.LastName == "" {
		return ErrNameRequired
	}
	if utf8.RuneCountInString(in.FirstName) > maxNameLength || utf8.RuneCountInString(in.LastName) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// Register creates a regular user account.
func (s *Service) Register(ctx context.Context, in Input) (model.User, error) {
	if err := validateProfile(&in); err != nil {
		return model.User{}, err
	}
	if len(in.Password) < minPasswordLength {
		return model.User{}, ErrPasswordTooShort
	}

	if _, err := s.queries.GetUserByEmail(ctx, in.Email); err == nil {
		return model.User{}, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return model.User{}, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return model.User{}, fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now()
	user, err := s.queries.CreateUser(ctx, store.CreateUserParams{
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}

	slog.Info("user registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// Authenticate verifies credentials and returns the matching user.
// Both an unknown email and a wrong password yield
// ErrInvalidCredentials, never revealing which one failed.
func (s *Service) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.queries.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		// Burn a hash check anyway so the timing matches a real user.
		_, _ = auth.CheckPassword(password, dummyHash)
		return model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, err
	}

	ok, err := auth.CheckPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return model.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// dummyHash keeps the rejected-email path doing the same argon2 work as
// the wrong-password path.
var dummyHash = func() string {
	h, err := auth.HashPassword("timing-equalizer")
	if err != nil {
		panic(err)
	}
	return h
}()

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id int64) (model.User, error) {
	user, err := s.queries.GetUserByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return user, err
}

// List returns all users, for the admin user index.
func (s *Service) List(ctx context.Context) ([]model.User, error) {
	return s.queries.ListUsers(ctx)
}

// Update edits a user's profile. Regular users edit only themselves and
// cannot change the admin flag; admins edit anyone, but stripping admin
// from the last administrator is rejected.
func (s *Service) Update(ctx context.Context, actor *model.User, id int64, in Input) (model.User, error) {
	if !actor.IsAdmin && actor.ID != id {
		return model.User{}, ErrForbidden
	}
	if err := validateProfile(&in); err != nil {
		return model.User{}, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return model.User{}, err
	}

	isAdmin := current.IsAdmin
	if actor.IsAdmin {
		isAdmin = in.IsAdmin
	}

	if current.IsAdmin && !isAdmin {
		if err := s.guardLastAdmin(ctx); err != nil {
			return model.User{}, err
		}
	}

	if in.Email != current.Email {
		if _, err := s.queries.GetUserByEmail(ctx, in.Email); err == nil {
			return model.User{}, ErrEmailTaken
		} else if !errors.Is(err, sql.ErrNoRows) {
			return model.User{}, err
		}
	}

	updated, err := s.queries.UpdateUser(ctx, store.UpdateUserParams{
		ID:        id,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		IsAdmin:   isAdmin,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return model.User{}, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}

// ChangePassword sets a new password after verifying the current one.
// Admins changing another user's password skip the current-password
// check.
func (s *Service) ChangePassword(ctx context.Context, actor *model.User, id int64, currentPassword, newPassword string) error {
	if !actor.IsAdmin && actor.ID != id {
		return ErrForbidden
	}
	if len(newPassword) < minPasswordLength {
		return ErrPasswordTooShort
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if actor.ID == id {
		ok, err := auth.CheckPassword(currentPassword, user.PasswordHash)
		if err != nil || !ok {
			return ErrInvalidCredentials
		}
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	return s.queries.UpdateUserPassword(ctx, id, hash, time.Now())
}

// Delete removes a user account along with all their listings and
// listing images. Deleting the last administrator is rejected.
func (s *Service) Delete(ctx context.Context, actor *model.User, id int64) error {
	if !actor.IsAdmin && actor.ID != id {
		return ErrForbidden
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.IsAdmin {
		if err := s.guardLastAdmin(ctx); err != nil {
			return err
		}
	}

	// Listings go through the staged deletion protocol so their files
	// come off disk with the rows.
	if err := s.listings.DeleteAllByUser(ctx, actor, id); err != nil {
		return fmt.Errorf("deleting user listings: %w", err)
	}

	if err := s.queries.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	slog.Info("user deleted", "user_id", id, "actor_id", actor.ID)
	return nil
}

// guardLastAdmin fails with ErrLastAdmin when only one administrator
// remains.
func (s *Service) guardLastAdmin(ctx context.Context) error {
	n, err := s.queries.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ErrLastAdmin
	}
	return nil
}
