package carestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/carewise/carestore/internal/audit"
	"github.com/carewise/carestore/internal/identity"
	"github.com/carewise/carestore/internal/lock"
	"github.com/carewise/carestore/internal/retention"
	"github.com/carewise/carestore/internal/statemap"
	"github.com/carewise/carestore/internal/store"
	"github.com/carewise/carestore/pkg/config"
	"github.com/carewise/carestore/pkg/errclass"
	"github.com/carewise/carestore/pkg/logging"
	"github.com/carewise/carestore/pkg/metrics"
	"github.com/carewise/carestore/pkg/model"
	"github.com/carewise/carestore/pkg/pathutil"
)

// Client provides high-level persistence operations on a store directory.
type Client struct {
	dir     *store.Dir
	cfg     *config.Config
	backend store.Backend
	locks   *lock.Coordinator
	mapper  *statemap.Mapper
	trail   *audit.FileAppender
	log     *logging.Logger
}

// Options configures Open and Init.
type Options struct {
	Backend     model.BackendType // empty defaults to the config file, then "file"
	SQLiteDSN   string            // empty defaults to <store>/carestore.db
	SessionKeys []string          // empty defaults to statemap.DefaultSessionKeys
	UserKeys    []string          // empty defaults to statemap.DefaultUserKeys
	Logger      *logging.Logger
}

// RequestContext carries the identity inputs resolved once per request and
// passed down explicitly. No ambient "current session" exists.
type RequestContext struct {
	SessionID           string // client-supplied session token, may be empty
	AuthenticatedUserID string // from the auth provider, empty when anonymous
	AnonymousUserID     string // previously generated anonymous id, may be empty
}

// Init initializes a new store directory at path.
func Init(path string, opts Options) (*Client, error) {
	dir, err := store.Init(path)
	if err != nil {
		return nil, fmt.Errorf("carestore init: %w", err)
	}
	cfg := config.Default()
	if opts.Backend != "" {
		cfg.Backend = string(opts.Backend)
	}
	if err := config.Save(dir.StoreDir, cfg); err != nil {
		return nil, fmt.Errorf("carestore init: %w", err)
	}
	return newClient(dir, cfg, opts)
}

// Open opens an existing store directory at or above path.
func Open(path string) (*Client, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions opens an existing store directory with explicit options.
func OpenWithOptions(path string, opts Options) (*Client, error) {
	dir, err := store.Discover(path)
	if err != nil {
		return nil, fmt.Errorf("carestore open: %w", err)
	}
	cfg, err := config.Load(dir.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("carestore open: %w", err)
	}
	return newClient(dir, cfg, opts)
}

// OpenOrInit opens an existing store, or initializes a new one if none exists.
func OpenOrInit(path string, opts Options) (*Client, error) {
	storeDir := filepath.Join(path, store.DirName)
	if info, err := os.Stat(storeDir); err == nil && info.IsDir() {
		return OpenWithOptions(path, opts)
	}
	return Init(path, opts)
}

func newClient(dir *store.Dir, cfg *config.Config, opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = logging.NewLogger(logging.ParseLevel(cfg.Logging.Level))
	}

	trail := audit.NewFileAppender(filepath.Join(dir.StoreDir, store.AuditDirName, "audit.jsonl"))

	backendType := model.BackendType(cfg.Backend)
	if opts.Backend != "" {
		backendType = opts.Backend
	}
	var backend store.Backend
	switch backendType {
	case model.BackendFile, "":
		b := store.NewFileBackend(dir.StoreDir, log)
		b.SetAuditTrail(trail)
		backend = b
	case model.BackendSQLite:
		dsn := opts.SQLiteDSN
		if dsn == "" {
			dsn = filepath.Join(dir.StoreDir, "carestore.db")
		}
		b, err := store.NewSQLiteBackend(dsn, log)
		if err != nil {
			return nil, err
		}
		b.SetAuditTrail(trail)
		backend = b
	default:
		return nil, errclass.ErrBackendUnsupported.WithMessagef("unknown backend %q", backendType)
	}

	sessionKeys := opts.SessionKeys
	if sessionKeys == nil {
		sessionKeys = statemap.DefaultSessionKeys
	}
	userKeys := opts.UserKeys
	if userKeys == nil {
		userKeys = statemap.DefaultUserKeys
	}
	mapper, err := statemap.NewMapper(sessionKeys, userKeys)
	if err != nil {
		backend.Close()
		return nil, err
	}

	policy := model.LockPolicy{
		AcquireTimeout: cfg.AcquireTimeout(),
		LeaseTTL:       cfg.LeaseTTL(),
		PollInterval:   cfg.PollInterval(),
	}

	return &Client{
		dir:     dir,
		cfg:     cfg,
		backend: backend,
		locks:   lock.NewCoordinator(dir.StoreDir, policy, log),
		mapper:  mapper,
		trail:   trail,
		log:     log,
	}, nil
}

// Close releases backend resources.
func (c *Client) Close() error {
	return c.backend.Close()
}

// LoadSession returns the session record for sessionID, or an empty default
// when the record is missing or was reset after corruption.
func (c *Client) LoadSession(ctx context.Context, sessionID string) (*model.SessionRecord, error) {
	if err := pathutil.ValidateID(sessionID); err != nil {
		return nil, err
	}
	metrics.Default.RecordLoad()

	var rec *model.SessionRecord
	err := c.locks.WithLock(ctx, model.KindSession, sessionID, "load-session", func() error {
		doc, err := c.backend.Read(ctx, model.KindSession, sessionID)
		if err != nil {
			return err
		}
		rec = decodeSession(sessionID, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SaveSession durably replaces the session payload, stamping last_accessed.
// On failure the caller still holds a usable in-memory payload; losing the
// save only costs resume-after-restart, and that degradation is logged.
func (c *Client) SaveSession(ctx context.Context, sessionID string, payload map[string]any) error {
	if err := pathutil.ValidateID(sessionID); err != nil {
		return err
	}

	err := c.locks.WithLock(ctx, model.KindSession, sessionID, "save-session", func() error {
		doc, err := c.backend.Read(ctx, model.KindSession, sessionID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		rec := decodeSession(sessionID, doc)
		rec.LastAccessed = now
		rec.Payload = payload
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal session record: %w", err)
		}
		return c.backend.Write(ctx, model.KindSession, sessionID, data)
	})

	metrics.Default.RecordSave(err != nil)
	if err != nil {
		c.log.ErrorErr("session save failed, continuing with in-memory state", err,
			map[string]any{"session_id": sessionID})
		return err
	}
	return nil
}

// ClearSession deletes the session record (logout/reset path).
func (c *Client) ClearSession(ctx context.Context, sessionID string) error {
	if err := pathutil.ValidateID(sessionID); err != nil {
		return err
	}
	err := c.locks.WithLock(ctx, model.KindSession, sessionID, "clear-session", func() error {
		return c.backend.Delete(ctx, model.KindSession, sessionID)
	})
	if err != nil {
		return err
	}
	if err := c.trail.Append(model.EventSessionCleared, model.KindSession, sessionID, nil); err != nil {
		c.log.Warn("audit append failed", map[string]any{
			"event":      string(model.EventSessionCleared),
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
	return nil
}

// CleanupOldSessions deletes session records older than maxAge and returns
// the number deleted. User records are never touched.
func (c *Client) CleanupOldSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	return c.Sweeper().Sweep(ctx, maxAge)
}

// LoadUser returns the user record for userID, or an empty default.
func (c *Client) LoadUser(ctx context.Context, userID string) (*model.UserRecord, error) {
	if err := pathutil.ValidateID(userID); err != nil {
		return nil, err
	}
	metrics.Default.RecordLoad()

	var rec *model.UserRecord
	err := c.locks.WithLock(ctx, model.KindUser, userID, "load-user", func() error {
		doc, err := c.backend.Read(ctx, model.KindUser, userID)
		if err != nil {
			return err
		}
		rec = decodeUser(userID, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SaveUser durably replaces the user payload, stamping last_updated.
func (c *Client) SaveUser(ctx context.Context, userID string, payload map[string]any) error {
	if err := pathutil.ValidateID(userID); err != nil {
		return err
	}

	err := c.locks.WithLock(ctx, model.KindUser, userID, "save-user", func() error {
		doc, err := c.backend.Read(ctx, model.KindUser, userID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		rec := decodeUser(userID, doc)
		rec.LastUpdated = now
		rec.Payload = payload
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal user record: %w", err)
		}
		return c.backend.Write(ctx, model.KindUser, userID, data)
	})

	metrics.Default.RecordSave(err != nil)
	if err != nil {
		c.log.ErrorErr("user save failed, continuing with in-memory state", err,
			map[string]any{"user_id": userID})
		return err
	}
	return nil
}

// DeleteUser removes a user record (account erasure). This is the only way
// a user record is ever deleted.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	if err := pathutil.ValidateID(userID); err != nil {
		return err
	}
	err := c.locks.WithLock(ctx, model.KindUser, userID, "delete-user", func() error {
		return c.backend.Delete(ctx, model.KindUser, userID)
	})
	if err != nil {
		return err
	}
	if err := c.trail.Append(model.EventUserDeleted, model.KindUser, userID, nil); err != nil {
		c.log.Warn("audit append failed", map[string]any{
			"event":   string(model.EventUserDeleted),
			"user_id": userID,
			"error":   err.Error(),
		})
	}
	return nil
}

// UserExists reports whether a user record is present.
func (c *Client) UserExists(ctx context.Context, userID string) (bool, error) {
	if err := pathutil.ValidateID(userID); err != nil {
		return false, err
	}
	return c.backend.Exists(ctx, model.KindUser, userID)
}

// ExtractSessionState copies the session-scoped keys out of the runtime
// state mapping. The result shares no references with state.
func (c *Client) ExtractSessionState(state map[string]any) map[string]any {
	return c.mapper.ExtractSession(state)
}

// ExtractUserState copies the user-scoped keys out of the runtime state
// mapping.
func (c *Client) ExtractUserState(state map[string]any) map[string]any {
	return c.mapper.ExtractUser(state)
}

// MergeIntoState sets every key of payload into state, overwriting existing
// values. Call once at request start, before business logic runs.
func (c *Client) MergeIntoState(state map[string]any, payload map[string]any) {
	c.mapper.Merge(state, payload)
}

// GetOrCreateSessionID returns the request's session id, generating a fresh
// token when none is supplied or the supplied one is malformed.
func (c *Client) GetOrCreateSessionID(rc RequestContext) string {
	return identity.ResolveSessionID(rc.SessionID)
}

// GetOrCreateUserID resolves the request's user identity: authenticated id
// first, existing anonymous id second, fresh anonymous id last.
func (c *Client) GetOrCreateUserID(rc RequestContext) string {
	return identity.ResolveUserID(rc.AuthenticatedUserID, rc.AnonymousUserID)
}

// SwitchUser transitions the runtime state mapping to a new identity. All
// session-scoped and user-scoped keys are cleared, then the new user's
// record is loaded and merged in, so nothing from the previous identity
// survives in state.
func (c *Client) SwitchUser(ctx context.Context, state map[string]any, newUserID string) (*model.UserRecord, error) {
	c.mapper.ClearSessionScope(state)
	c.mapper.ClearUserScope(state)

	rec, err := c.LoadUser(ctx, newUserID)
	if err != nil {
		return nil, err
	}
	c.mapper.Merge(state, rec.Payload)
	return rec, nil
}

// ListSessions returns the ids of all session records.
func (c *Client) ListSessions(ctx context.Context) ([]string, error) {
	return c.backend.List(ctx, model.KindSession)
}

// ListUsers returns the ids of all user records.
func (c *Client) ListUsers(ctx context.Context) ([]string, error) {
	return c.backend.List(ctx, model.KindUser)
}

// Sweeper returns a retention sweeper bound to this client's backend and
// lock coordinator.
func (c *Client) Sweeper() *retention.Sweeper {
	return retention.NewSweeper(c.backend, c.locks, c.trail, c.log)
}

// MaxSessionAge returns the configured retention age.
func (c *Client) MaxSessionAge() time.Duration {
	return c.cfg.MaxSessionAge()
}

// SweepSchedule returns the configured cron expression for scheduled sweeps.
func (c *Client) SweepSchedule() string {
	return c.cfg.Retention.SweepSchedule
}

// StoreDir returns the absolute path to the .carestore directory.
func (c *Client) StoreDir() string {
	return c.dir.StoreDir
}

// StoreID returns the unique store identifier.
func (c *Client) StoreID() string {
	return c.dir.StoreID
}

// BackendType returns the backend in use.
func (c *Client) BackendType() model.BackendType {
	if _, ok := c.backend.(*store.SQLiteBackend); ok {
		return model.BackendSQLite
	}
	return model.BackendFile
}

// decodeSession turns stored bytes into a record, falling back to an empty
// default when doc is nil or has drifted out of shape.
func decodeSession(id string, doc []byte) *model.SessionRecord {
	now := time.Now().UTC()
	if doc == nil {
		return model.NewSessionRecord(id, now)
	}
	var rec model.SessionRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return model.NewSessionRecord(id, now)
	}
	rec.SessionID = id
	if rec.Payload == nil {
		rec.Payload = make(map[string]any)
	}
	return &rec
}

func decodeUser(id string, doc []byte) *model.UserRecord {
	now := time.Now().UTC()
	if doc == nil {
		return model.NewUserRecord(id, now)
	}
	var rec model.UserRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return model.NewUserRecord(id, now)
	}
	rec.UserID = id
	if rec.Payload == nil {
		rec.Payload = make(map[string]any)
	}
	return &rec
}
