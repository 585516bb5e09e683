// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package accounts

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/logging"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/validation"
)

// accountsKey holds the whole registry document; it is read and replaced
// as one value.
const accountsKey = "opt:accounts"

// Encrypter seals app passwords.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// ReferenceCounter counts content items that reference an account.
type ReferenceCounter interface {
	CountReferences(ctx context.Context, accountID string) (int, error)
}

// ResetFunc discards state kept for an account outside the registry, such
// as cached sessions or circuit state.
type ResetFunc func(ctx context.Context, accountID string) error

type resetHook struct {
	name string
	fn   ResetFunc
}

// AddRequest is the input to Add.
type AddRequest struct {
	Handle        string        `json:"handle" validate:"required,bskyhandle"`
	AppPassword   string        `json:"app_password" validate:"required"`
	AutoSyndicate *bool         `json:"auto_syndicate,omitempty"`
	CategoryRules CategoryRules `json:"category_rules"`
}

// Patch updates selected fields; nil fields are left unchanged.
type Patch struct {
	Handle        *string        `json:"handle,omitempty"`
	AppPassword   *string        `json:"app_password,omitempty"`
	AutoSyndicate *bool          `json:"auto_syndicate,omitempty"`
	CategoryRules *CategoryRules `json:"category_rules,omitempty"`
}

// Options configures a Registry.
type Options struct {
	// SkipMigration bypasses Migrate entirely.
	SkipMigration bool
}

type document struct {
	Accounts []Account `json:"accounts"`
}

// Registry manages the configured accounts. Writes are serialized within
// the process; the store offers no cross-process atomicity.
type Registry struct {
	store  store.Store
	clock  store.Clock
	enc    Encrypter
	refs   ReferenceCounter
	opts   Options
	mu     sync.Mutex
	hooks  []resetHook
	logger zerolog.Logger
}

// NewRegistry creates a Registry. refs may be nil, in which case Remove
// reports zero orphaned items.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRegistry(s store.Store, clock store.Clock, enc Encrypter, refs ReferenceCounter, opts Options, logger zerolog.Logger) *Registry {
	if clock == nil {
		clock = store.SystemClock{}
	}
	return &Registry{
		store:  s,
		clock:  clock,
		enc:    enc,
		refs:   refs,
		opts:   opts,
		logger: logger.With().Str("component", "accounts").Logger(),
	}
}

// OnReset registers fn to run after an account is removed or its handle
// or app password changes. Hooks run in registration order; a failing
// hook is logged and does not stop the others.
func (r *Registry) OnReset(name string, fn ResetFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, resetHook{name: name, fn: fn})
}

func (r *Registry) runResetHooks(ctx context.Context, id, reason string) {
	r.mu.Lock()
	hooks := append([]resetHook(nil), r.hooks...)
	r.mu.Unlock()

	for _, h := range hooks {
		if err := h.fn(ctx, id); err != nil {
			r.logger.Warn().Err(err).Str("account_id", id).Str("hook", h.name).Str("reason", reason).Msg("Account reset hook failed")
		}
	}
}

func (r *Registry) load(ctx context.Context) ([]Account, error) {
	var doc document
	if _, err := store.GetJSON(ctx, r.store, accountsKey, &doc); err != nil {
		return nil, err
	}
	return doc.Accounts, nil
}

// save enforces the single-active invariant before persisting.
func (r *Registry) save(ctx context.Context, list []Account) error {
	ensureOneActive(list)
	return store.SetJSON(ctx, r.store, accountsKey, document{Accounts: list}, 0)
}

// ensureOneActive leaves exactly one active account when any exist: the
// first one already marked, else the first in order.
func ensureOneActive(list []Account) {
	activeIdx := -1
	for i := range list {
		if list[i].IsActive && activeIdx < 0 {
			activeIdx = i
		}
	}
	if activeIdx < 0 && len(list) > 0 {
		activeIdx = 0
	}
	for i := range list {
		list[i].IsActive = i == activeIdx
	}
}

func indexOf(list []Account, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func handleTaken(list []Account, handle, exceptID string) bool {
	for i := range list {
		if list[i].ID != exceptID && NormalizeHandle(list[i].Handle) == handle {
			return true
		}
	}
	return false
}

func (r *Registry) encrypt(password string) (string, error) {
	if r.enc == nil {
		return "", newError(ErrEncryptionFailed, nil)
	}
	sealed, err := r.enc.Encrypt(password)
	if err != nil {
		r.logger.Warn().Err(err).Msg("App password encryption failed")
		return "", newError(ErrEncryptionFailed, err)
	}
	return sealed, nil
}

// Add registers a new account and returns its id. The first account is
// made active. auto_syndicate defaults to true.
func (r *Registry) Add(ctx context.Context, req AddRequest) (string, error) {
	req.Handle = NormalizeHandle(req.Handle)
	if req.Handle == "" {
		return "", ErrMissingHandle
	}
	if req.AppPassword == "" {
		return "", ErrMissingPassword
	}
	if verr := validation.ValidateStruct(req); verr != nil {
		return "", newError(ErrInvalidHandle, verr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.load(ctx)
	if err != nil {
		return "", err
	}
	if handleTaken(list, req.Handle, "") {
		return "", ErrDuplicateHandle
	}

	sealed, err := r.encrypt(req.AppPassword)
	if err != nil {
		return "", err
	}

	now := r.clock.Now().UTC()
	auto := true
	if req.AutoSyndicate != nil {
		auto = *req.AutoSyndicate
	}
	acct := Account{
		ID:                uuid.NewString(),
		Handle:            req.Handle,
		EncryptedPassword: sealed,
		IsActive:          len(list) == 0,
		AutoSyndicate:     auto,
		CategoryRules:     req.CategoryRules,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	list = append(list, acct)
	if err := r.save(ctx, list); err != nil {
		return "", err
	}

	r.logger.Info().Str("account_id", acct.ID).Str("handle", acct.Handle).Bool("active", acct.IsActive).Msg("Account added")
	return acct.ID, nil
}

// Remove deletes an account and returns how many content items still
// reference it. References are left in place. An active account hands the
// active flag to the first remaining account.
func (r *Registry) Remove(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	list, err := r.load(ctx)
	if err != nil {
		r.mu.Unlock()
		return 0, err
	}
	idx := indexOf(list, id)
	if idx < 0 {
		r.mu.Unlock()
		return 0, ErrNotFound
	}
	removed := list[idx]
	list = append(list[:idx], list[idx+1:]...)
	err = r.save(ctx, list)
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}

	r.runResetHooks(ctx, id, "removed")

	orphaned := 0
	if r.refs != nil {
		n, err := r.refs.CountReferences(ctx, id)
		if err != nil {
			r.logger.Warn().Err(err).Str("account_id", id).Msg("Could not count orphaned references")
		} else {
			orphaned = n
		}
	}

	r.logger.Info().Str("account_id", id).Str("handle", logging.MaskHandle(removed.Handle)).
		Int("orphaned", orphaned).Bool("was_active", removed.IsActive).Msg("Account removed")
	return orphaned, nil
}

// SetActive makes id the only active account.
func (r *Registry) SetActive(ctx context.Context, id string) error {
	return r.mutate(ctx, id, func(_ []Account, _ int) error { return nil }, func(list []Account, idx int) {
		for i := range list {
			list[i].IsActive = i == idx
		}
	})
}

// Update applies a partial patch. A new password is re-encrypted; a new
// handle must be unique and resets the cached DID. Either change runs the
// reset hooks so no cached session of the old identity is reused.
func (r *Registry) Update(ctx context.Context, id string, p Patch) error {
	var sealed string
	var newHandle string

	if p.Handle != nil {
		newHandle = NormalizeHandle(*p.Handle)
		if newHandle == "" {
			return ErrMissingHandle
		}
		if !validation.IsHandle(newHandle) {
			return ErrInvalidHandle
		}
	}
	if p.AppPassword != nil {
		if *p.AppPassword == "" {
			return ErrMissingPassword
		}
		s, err := r.encrypt(*p.AppPassword)
		if err != nil {
			return err
		}
		sealed = s
	}

	check := func(list []Account, idx int) error {
		if newHandle != "" && handleTaken(list, newHandle, list[idx].ID) {
			return ErrDuplicateHandle
		}
		return nil
	}
	credsChanged := false
	err := r.mutate(ctx, id, check, func(list []Account, idx int) {
		a := &list[idx]
		if newHandle != "" && newHandle != a.Handle {
			a.Handle = newHandle
			a.DID = ""
			credsChanged = true
		}
		if sealed != "" {
			a.EncryptedPassword = sealed
			credsChanged = true
		}
		if p.AutoSyndicate != nil {
			a.AutoSyndicate = *p.AutoSyndicate
		}
		if p.CategoryRules != nil {
			a.CategoryRules = *p.CategoryRules
		}
	})
	if err != nil {
		return err
	}
	if credsChanged {
		r.runResetHooks(ctx, id, "credentials_changed")
	}
	return nil
}

// ClearCredentials strips the stored password and DID. It implements
// bluesky.CredentialSink for logout.
func (r *Registry) ClearCredentials(ctx context.Context, id string) error {
	return r.mutate(ctx, id, nil, func(list []Account, idx int) {
		list[idx].EncryptedPassword = ""
		list[idx].DID = ""
	})
}

// SetRemoteID records the DID learned at authentication.
func (r *Registry) SetRemoteID(ctx context.Context, id, did string) error {
	return r.mutate(ctx, id, nil, func(list []Account, idx int) {
		list[idx].DID = did
	})
}

func (r *Registry) mutate(ctx context.Context, id string, check func([]Account, int) error, apply func([]Account, int)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.load(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(list, id)
	if idx < 0 {
		return ErrNotFound
	}
	if check != nil {
		if err := check(list, idx); err != nil {
			return err
		}
	}
	apply(list, idx)
	list[idx].UpdatedAt = r.clock.Now().UTC()
	return r.save(ctx, list)
}

// Get returns one account.
func (r *Registry) Get(ctx context.Context, id string) (Account, error) {
	list, err := r.load(ctx)
	if err != nil {
		return Account{}, err
	}
	idx := indexOf(list, id)
	if idx < 0 {
		return Account{}, ErrNotFound
	}
	return list[idx], nil
}

// List returns all accounts in creation order.
func (r *Registry) List(ctx context.Context) ([]Account, error) {
	return r.load(ctx)
}

// Active returns the active account, if any.
func (r *Registry) Active(ctx context.Context) (Account, bool, error) {
	list, err := r.load(ctx)
	if err != nil {
		return Account{}, false, err
	}
	for i := range list {
		if list[i].IsActive {
			return list[i], true, nil
		}
	}
	return Account{}, false, nil
}

// ShouldSyndicate applies the account's category rules to categories.
func (r *Registry) ShouldSyndicate(ctx context.Context, categories []string, id string) (bool, error) {
	acct, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return acct.CategoryRules.Allows(categories), nil
}
