package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"inkshelf/pkg/auth"
	"inkshelf/pkg/domain"
	"inkshelf/pkg/storage"
)

// Register creates a new admin account. The first account on a fresh
// installation becomes superadmin.
func (a *App) Register(username, email, password, name string) (domain.Admin, error) {
	username = strings.TrimSpace(username)
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	fields := map[string]string{}
	if !validUsername(username) {
		fields["username"] = "Username must be 3-50 characters and contain only letters, numbers, and underscores"
	}
	if email == "" {
		fields["email"] = "Please provide a valid email address"
	}
	if err := auth.ValidatePassword(password); err != nil {
		fields["password"] = err.Error()
	}
	if !validName(name) {
		fields["name"] = "Name must be 2-100 characters and contain only letters and spaces"
	}
	if len(fields) > 0 {
		return domain.Admin{}, InvalidFields("Validation failed", fields)
	}

	if _, ok, err := a.store.GetAdminByUsername(username); err != nil {
		return domain.Admin{}, fmt.Errorf("check username: %w", err)
	} else if ok {
		return domain.Admin{}, Conflict("Username or email already exists")
	}
	exists, err := a.store.HasAdminEmail(email)
	if err != nil {
		return domain.Admin{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.Admin{}, Conflict("Username or email already exists")
	}

	role := domain.RoleAdmin
	count, err := a.store.AdminCount()
	if err != nil {
		return domain.Admin{}, fmt.Errorf("count admins: %w", err)
	}
	if count == 0 {
		role = domain.RoleSuperAdmin
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.Admin{}, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	admin := domain.Admin{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveAdmin(admin); err != nil {
		return domain.Admin{}, fmt.Errorf("save admin: %w", err)
	}
	return admin, nil
}

// Login validates credentials and issues a bearer token.
func (a *App) Login(email, password string) (domain.Admin, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	admin, ok, err := a.store.GetAdminByEmail(email)
	if err != nil {
		return domain.Admin{}, "", fmt.Errorf("fetch admin: %w", err)
	}
	if !ok {
		return domain.Admin{}, "", AuthFailed("Invalid credentials")
	}
	if !admin.IsActive {
		return domain.Admin{}, "", AuthFailed("Account is deactivated")
	}
	if !auth.CheckPassword(password, admin.PasswordHash) {
		return domain.Admin{}, "", AuthFailed("Invalid credentials")
	}
	bearer, err := a.tokens.Issue(admin.ID)
	if err != nil {
		return domain.Admin{}, "", fmt.Errorf("issue token: %w", err)
	}
	return admin, bearer, nil
}

// Authenticate resolves an admin from a bearer token. Invalid tokens and
// inactive accounts resolve to false.
func (a *App) Authenticate(bearer string) (domain.Admin, bool) {
	id, err := a.tokens.Verify(bearer)
	if err != nil {
		return domain.Admin{}, false
	}
	admin, ok, err := a.store.GetAdminByID(id)
	if err != nil || !ok {
		return domain.Admin{}, false
	}
	if !admin.IsActive {
		return domain.Admin{}, false
	}
	return admin, true
}

// GetProfile returns the current account record.
func (a *App) GetProfile(adminID string) (domain.Admin, error) {
	admin, ok, err := a.store.GetAdminByID(adminID)
	if err != nil {
		return domain.Admin{}, fmt.Errorf("fetch admin: %w", err)
	}
	if !ok {
		return domain.Admin{}, NotFound("Account not found")
	}
	return admin, nil
}

// UpdateProfile applies a partial profile update (name and/or username).
func (a *App) UpdateProfile(admin domain.Admin, name, username *string) (domain.Admin, error) {
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if !validName(trimmed) {
			return domain.Admin{}, InvalidFields("Validation failed", map[string]string{
				"name": "Name must be 2-100 characters and contain only letters and spaces",
			})
		}
		admin.Name = trimmed
	}
	if username != nil {
		trimmed := strings.TrimSpace(*username)
		if !validUsername(trimmed) {
			return domain.Admin{}, InvalidFields("Validation failed", map[string]string{
				"username": "Username must be 3-50 characters and contain only letters, numbers, and underscores",
			})
		}
		if trimmed != admin.Username {
			existing, ok, err := a.store.GetAdminByUsername(trimmed)
			if err != nil {
				return domain.Admin{}, fmt.Errorf("check username: %w", err)
			}
			if ok && existing.ID != admin.ID {
				return domain.Admin{}, Conflict("Username already taken")
			}
			admin.Username = trimmed
		}
	}
	admin.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveAdmin(admin); err != nil {
		return domain.Admin{}, fmt.Errorf("update admin: %w", err)
	}
	return admin, nil
}

// ChangePassword replaces the password after verifying the current one.
func (a *App) ChangePassword(adminID, current, newPassword, confirm string) error {
	if strings.TrimSpace(current) == "" || strings.TrimSpace(newPassword) == "" {
		return Invalid("Current and new password are required")
	}
	if newPassword != confirm {
		return Invalid("New password and confirmation do not match")
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return Invalid(err.Error())
	}
	admin, ok, err := a.store.GetAdminByID(adminID)
	if err != nil {
		return fmt.Errorf("fetch admin: %w", err)
	}
	if !ok {
		return NotFound("Account not found")
	}
	if !auth.CheckPassword(current, admin.PasswordHash) {
		return AuthFailed("Current password is incorrect")
	}
	if current == newPassword {
		return Invalid("New password must differ from current password")
	}
	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	admin.PasswordHash = passwordHash
	admin.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveAdmin(admin); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetProfileImage uploads a new profile image and removes the previous one.
func (a *App) SetProfileImage(ctx context.Context, admin domain.Admin, up storage.Upload) (domain.MediaRef, error) {
	ref, err := a.media.Upload(ctx, storage.KindProfileImage, up)
	if err != nil {
		return domain.MediaRef{}, Upstream("Failed to store profile image", err)
	}
	previous := admin.ProfileImage
	admin.ProfileImage = &domain.MediaRef{URL: ref.URL, ExternalID: ref.ExternalID}
	admin.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveAdmin(admin); err != nil {
		if cleanupErr := a.media.Delete(ctx, ref.ExternalID); cleanupErr != nil {
			slog.Warn("profile image cleanup failed", "externalId", ref.ExternalID, "error", cleanupErr)
		}
		return domain.MediaRef{}, fmt.Errorf("update admin: %w", err)
	}
	if previous != nil {
		if err := a.media.Delete(ctx, previous.ExternalID); err != nil {
			slog.Warn("previous profile image delete failed", "externalId", previous.ExternalID, "error", err)
		}
	}
	return *admin.ProfileImage, nil
}

// RemoveProfileImage deletes the current profile image, if any.
func (a *App) RemoveProfileImage(ctx context.Context, admin domain.Admin) error {
	if admin.ProfileImage == nil {
		return NotFound("No profile image set")
	}
	externalID := admin.ProfileImage.ExternalID
	admin.ProfileImage = nil
	admin.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveAdmin(admin); err != nil {
		return fmt.Errorf("update admin: %w", err)
	}
	if err := a.media.Delete(ctx, externalID); err != nil {
		slog.Warn("profile image delete failed", "externalId", externalID, "error", err)
	}
	return nil
}
