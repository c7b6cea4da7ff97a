package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudsync/todocal/internal/instrumentation"
	"github.com/cloudsync/todocal/internal/logging"
)

// Fixed keys of the persisted record.
const (
	KeyAccessToken = "google_access_token"
	KeyUserEmail   = "google_user_email"

	// KeyForceAccountChoice survives Clear: it is set after sign-out and
	// consumed by the next authorization flow.
	KeyForceAccountChoice = "google_force_account_choice"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("token store closed")

// Record is the persisted snapshot of a session. An empty field is absent.
type Record struct {
	AccessToken string
	Email       string
}

// Empty reports whether no token is stored.
func (r Record) Empty() bool {
	return r.AccessToken == ""
}

// Backend is a durable string key-value medium.
//
// Get returns only the keys that exist. Write applies sets and deletes; a
// backend that supports transactions applies them together.
type Backend interface {
	Name() string
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	Write(ctx context.Context, set map[string]string, del []string) error
	Close() error
}

// Options configures a Store.
type Options struct {
	// EncryptionKey enables AES-256-GCM sealing of values when set (32 bytes).
	EncryptionKey []byte
	Logger        *slog.Logger
	Metrics       *instrumentation.Metrics
}

// Store reads and writes the persisted record through a Backend.
type Store struct {
	backend Backend
	cipher  *Cipher
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// New creates a Store on backend.
func New(backend Backend, opts Options) (*Store, error) {
	if backend == nil {
		return nil, errors.New("tokenstore: backend is required")
	}
	c, err := NewCipher(opts.EncryptionKey)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		cipher:  c,
		logger:  logger.With(logging.Backend(backend.Name())),
		metrics: opts.Metrics,
	}, nil
}

// Save persists rec. An empty email deletes the stored email; an empty
// token is the same as Clear.
func (s *Store) Save(ctx context.Context, rec Record) (err error) {
	defer s.observe(ctx, "save", &err)

	if rec.Empty() {
		return s.backend.Write(ctx, nil, []string{KeyAccessToken, KeyUserEmail})
	}

	set := make(map[string]string, 2)
	var del []string
	if set[KeyAccessToken], err = s.cipher.Seal(rec.AccessToken); err != nil {
		return err
	}
	if rec.Email != "" {
		if set[KeyUserEmail], err = s.cipher.Seal(rec.Email); err != nil {
			return err
		}
	} else {
		del = append(del, KeyUserEmail)
	}

	if err := s.backend.Write(ctx, set, del); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load returns whatever is persisted. A missing record is not an error.
//
// With encryption enabled, a record holding unencrypted values is not
// trusted: it is deleted and Load reports an empty record.
func (s *Store) Load(ctx context.Context) (rec Record, err error) {
	defer s.observe(ctx, "load", &err)

	values, err := s.backend.Get(ctx, KeyAccessToken, KeyUserEmail)
	if err != nil {
		return Record{}, fmt.Errorf("failed to load session: %w", err)
	}
	rec.AccessToken, err = s.cipher.Open(values[KeyAccessToken])
	if err == nil {
		rec.Email, err = s.cipher.Open(values[KeyUserEmail])
	}
	switch {
	case errors.Is(err, ErrPlainValue):
		s.logger.Warn("discarding unencrypted session record", logging.Err(err))
		if err := s.backend.Write(ctx, nil, []string{KeyAccessToken, KeyUserEmail}); err != nil {
			return Record{}, fmt.Errorf("failed to discard unencrypted session: %w", err)
		}
		return Record{}, nil
	case err != nil:
		return Record{}, fmt.Errorf("failed to decode stored session: %w", err)
	}
	return rec, nil
}

// Clear removes both fields.
func (s *Store) Clear(ctx context.Context) (err error) {
	defer s.observe(ctx, "clear", &err)

	if err := s.backend.Write(ctx, nil, []string{KeyAccessToken, KeyUserEmail}); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// SetForceAccountChoice records that the next authorization flow must ask
// the user to pick an account.
func (s *Store) SetForceAccountChoice(ctx context.Context) (err error) {
	defer s.observe(ctx, "set_account_choice", &err)

	if err := s.backend.Write(ctx, map[string]string{KeyForceAccountChoice: "1"}, nil); err != nil {
		return fmt.Errorf("failed to save account choice: %w", err)
	}
	return nil
}

// TakeForceAccountChoice reports whether SetForceAccountChoice was called
// since the last Take and resets the flag.
func (s *Store) TakeForceAccountChoice(ctx context.Context) (forced bool, err error) {
	defer s.observe(ctx, "take_account_choice", &err)

	values, err := s.backend.Get(ctx, KeyForceAccountChoice)
	if err != nil {
		return false, fmt.Errorf("failed to load account choice: %w", err)
	}
	if _, ok := values[KeyForceAccountChoice]; !ok {
		return false, nil
	}
	if err := s.backend.Write(ctx, nil, []string{KeyForceAccountChoice}); err != nil {
		return true, fmt.Errorf("failed to reset account choice: %w", err)
	}
	return true, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Backend returns the name of the underlying backend.
func (s *Store) Backend() string {
	return s.backend.Name()
}

func (s *Store) observe(ctx context.Context, op string, errp *error) {
	status := instrumentation.StatusOf(*errp)
	s.metrics.RecordTokenStoreOperation(ctx, s.backend.Name(), op, status)
	if *errp != nil {
		s.logger.Error("token store operation failed", logging.Operation("tokenstore."+op), logging.Err(*errp))
		return
	}
	s.logger.Debug("token store operation", logging.Operation("tokenstore."+op), logging.Status(status))
}
