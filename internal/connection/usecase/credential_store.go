package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pulse-backend/internal/connection/domain"
	"pulse-backend/internal/connection/dto"
	"pulse-backend/internal/connection/repository"
	"pulse-backend/pkg/vault"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
)

// Tokens expiring inside this window are refreshed before being handed out.
const refreshWindow = time.Minute

type credentialStore struct {
	repo         repository.ConnectionRepository
	sealer       vault.Sealer
	oauthConfigs map[domain.Platform]*oauth2.Config
	purger       RegistryPurger
	users        UserEnsurer
	refreshGroup singleflight.Group
	now          func() time.Time
}

func NewConnectionUsecase(
	repo repository.ConnectionRepository,
	sealer vault.Sealer,
	oauthConfigs map[domain.Platform]*oauth2.Config,
	purger RegistryPurger,
	users UserEnsurer,
) ConnectionUsecase {
	return &credentialStore{
		repo:         repo,
		sealer:       sealer,
		oauthConfigs: oauthConfigs,
		purger:       purger,
		users:        users,
		now:          time.Now,
	}
}

func (s *credentialStore) GetValidToken(ctx context.Context, connectionID string) (*domain.Credentials, error) {
	conn, err := s.repo.FindByID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("loading connection: %w", err)
	}
	if conn == nil {
		return nil, domain.ErrConnectionNotFound
	}
	if conn.Status == domain.StatusDisconnected {
		return nil, domain.NewAuthError(conn.Platform, conn.ID, "connection is disconnected", domain.ErrNotConnected)
	}

	creds, err := s.open(conn)
	if err != nil {
		return nil, domain.NewAuthError(conn.Platform, conn.ID, "credentials could not be decrypted", err)
	}
	if !creds.ExpiresWithin(s.now(), refreshWindow) {
		return creds, nil
	}

	// Concurrent callers for one connection share a single refresh round trip.
	v, err, shared := s.refreshGroup.Do(conn.ID, func() (interface{}, error) {
		return s.refresh(ctx, conn, creds)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.WithField("connection_id", conn.ID).Debug("[CredentialStore] Shared in-flight token refresh")
	}
	refreshed := *v.(*domain.Credentials)
	return &refreshed, nil
}

func (s *credentialStore) refresh(ctx context.Context, conn *domain.PlatformConnection, creds *domain.Credentials) (*domain.Credentials, error) {
	if creds.RefreshToken == "" {
		return nil, domain.NewAuthError(conn.Platform, conn.ID, "access token expired and no refresh token is stored", nil)
	}
	oauthConfig, ok := s.oauthConfigs[conn.Platform]
	if !ok {
		return nil, domain.NewAuthError(conn.Platform, conn.ID, "no oauth client configured for refresh", nil)
	}

	stale := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    creds.TokenType,
		Expiry:       s.now().Add(-time.Second), // force the refresh round trip
	}
	token, err := oauthConfig.TokenSource(ctx, stale).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, domain.NewAuthError(conn.Platform, conn.ID, "token refresh rejected", err)
		}
		return nil, fmt.Errorf("refreshing %s token: %w", conn.Platform, err)
	}

	refreshed := *creds
	refreshed.AccessToken = token.AccessToken
	refreshed.Expiry = token.Expiry
	if token.RefreshToken != "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	if token.TokenType != "" {
		refreshed.TokenType = token.TokenType
	}

	sealed, err := s.seal(&refreshed)
	if err != nil {
		return nil, err
	}
	// Persist even if the caller is shutting down; the old refresh token may already be rotated.
	if err := s.repo.UpdateCredentials(context.WithoutCancel(ctx), conn.ID, sealed); err != nil {
		return nil, fmt.Errorf("persisting refreshed token: %w", err)
	}

	log.WithFields(log.Fields{
		"connection_id": conn.ID,
		"platform":      conn.Platform,
	}).Info("[CredentialStore] Refreshed access token")
	return &refreshed, nil
}

func (s *credentialStore) MarkConnectionStatus(ctx context.Context, connectionID string, status domain.Status, reason string) error {
	if err := s.repo.UpdateStatus(ctx, connectionID, status, reason); err != nil {
		return fmt.Errorf("updating connection status: %w", err)
	}
	return nil
}

func (s *credentialStore) Connect(ctx context.Context, req *dto.ConnectRequest) (*domain.PlatformConnection, error) {
	if !req.Platform.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPlatform, req.Platform)
	}
	if _, err := s.users.EnsureUser(req.UserID, req.AccountEmail); err != nil {
		return nil, fmt.Errorf("ensuring user: %w", err)
	}

	creds := req.Credentials()
	sealed, err := s.seal(&creds)
	if err != nil {
		return nil, err
	}

	conn, err := s.repo.FindByUserAndPlatform(ctx, req.UserID, req.Platform)
	if err != nil {
		return nil, err
	}

	if conn == nil {
		conn = &domain.PlatformConnection{
			UserID:            req.UserID,
			Platform:          req.Platform,
			Status:            domain.StatusActive,
			SealedCredentials: sealed,
			AccountEmail:      req.AccountEmail,
			Settings: datatypes.NewJSONType(domain.Settings{
				Resources:     req.Resources,
				BootstrapDays: req.BootstrapDays,
				IMAPHost:      req.IMAPHost,
			}),
		}
		if err := s.repo.Create(ctx, conn); err != nil {
			return nil, fmt.Errorf("creating connection: %w", err)
		}
		return conn, nil
	}

	settings := conn.Settings.Data()
	if req.Resources != nil {
		settings.Resources = req.Resources
	}
	if req.BootstrapDays > 0 {
		settings.BootstrapDays = req.BootstrapDays
	}
	if req.IMAPHost != "" {
		settings.IMAPHost = req.IMAPHost
	}
	conn.Settings = datatypes.NewJSONType(settings)
	conn.Status = domain.StatusActive
	conn.SealedCredentials = sealed
	conn.LastError = ""
	if req.AccountEmail != "" {
		conn.AccountEmail = req.AccountEmail
	}
	if err := s.repo.Update(ctx, conn); err != nil {
		return nil, fmt.Errorf("updating connection: %w", err)
	}
	return conn, nil
}

// Disconnect wipes credentials first so no new sync can start, then drops registry state.
func (s *credentialStore) Disconnect(ctx context.Context, connectionID string) error {
	if err := s.repo.Disconnect(ctx, connectionID); err != nil {
		return err
	}
	if s.purger != nil {
		if err := s.purger.DeleteByConnection(ctx, connectionID); err != nil {
			return fmt.Errorf("purging registry: %w", err)
		}
	}
	return nil
}

func (s *credentialStore) Delete(ctx context.Context, connectionID string) error {
	if s.purger != nil {
		if err := s.purger.DeleteByConnection(ctx, connectionID); err != nil {
			return fmt.Errorf("purging registry: %w", err)
		}
	}
	return s.repo.Delete(ctx, connectionID)
}

func (s *credentialStore) UpdateResources(ctx context.Context, connectionID string, resources []domain.Resource) (*domain.PlatformConnection, error) {
	conn, err := s.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	settings := conn.Settings.Data()
	settings.Resources = resources
	conn.Settings = datatypes.NewJSONType(settings)
	if err := s.repo.Update(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *credentialStore) Get(ctx context.Context, connectionID string) (*domain.PlatformConnection, error) {
	conn, err := s.repo.FindByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, domain.ErrConnectionNotFound
	}
	return conn, nil
}

func (s *credentialStore) ListByUser(ctx context.Context, userID string) ([]domain.PlatformConnection, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *credentialStore) FindByAccountEmail(ctx context.Context, platform domain.Platform, email string) (*domain.PlatformConnection, error) {
	return s.repo.FindByAccountEmail(ctx, platform, email)
}

func (s *credentialStore) seal(creds *domain.Credentials) (string, error) {
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("encoding credentials: %w", err)
	}
	sealed, err := s.sealer.Seal(raw)
	if err != nil {
		return "", fmt.Errorf("sealing credentials: %w", err)
	}
	return sealed, nil
}

func (s *credentialStore) open(conn *domain.PlatformConnection) (*domain.Credentials, error) {
	if conn.SealedCredentials == "" {
		return nil, errors.New("no credentials stored")
	}
	raw, err := s.sealer.Open(conn.SealedCredentials)
	if err != nil {
		return nil, err
	}
	var creds domain.Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("decoding credentials: %w", err)
	}
	return &creds, nil
}
