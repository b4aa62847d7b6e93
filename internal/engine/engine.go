// Package engine holds the in-memory working set served to readers: the
// message table, the derived referral and failure tables, and thread
// lookups built from them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/chatlens/internal/database"
	"github.com/TobiSchelling/chatlens/internal/detect"
	"github.com/TobiSchelling/chatlens/internal/pipeline"
)

// ErrNoDataSource is returned by Init when the store is empty and there is
// no raw export to build it from.
var ErrNoDataSource = errors.New("no data source: message store is empty and raw export is missing")

// ErrAlreadyInitialized is returned by a second call to Init.
var ErrAlreadyInitialized = errors.New("engine already initialized")

// Store is the persistence the engine reads from and writes derived tables
// to.
type Store interface {
	CountMessages(ctx context.Context) (int, error)
	LoadMessages(ctx context.Context) ([]database.Message, error)
	LoadReferrals(ctx context.Context) ([]database.Referral, error)
	LoadFailures(ctx context.Context) ([]database.Failure, error)
	ReplaceEvents(ctx context.Context, refs []database.Referral, fails []database.Failure) error
}

// Ingester fills an empty store.
type Ingester interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

// State is the engine lifecycle stage.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateReloading
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateReloading:
		return "reloading"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Editable message fields accepted by UpdateMessage.
const (
	FieldCategory       = "category"
	FieldCategoryMacro  = "category_macro"
	FieldProduct        = "product"
	FieldProductMacro   = "product_macro"
	FieldSentiment      = "sentiment"
	FieldRequiresReview = "requires_review"
	FieldText           = "text"
)

// Engine serves a consistent snapshot of the store. Each rebuild produces
// a fresh snapshot that replaces the previous one in a single atomic swap,
// so readers never see a half-built state.
type Engine struct {
	store    Store
	ingester Ingester
	logger   *zap.Logger

	// mu serializes Init and Reload. It is held for a whole build.
	mu    sync.Mutex
	state atomic.Int32
	snap  atomic.Pointer[snapshot]

	// patchMu guards snapshot swaps and pending. UpdateMessage takes only
	// this lock, so it never waits on a build.
	patchMu sync.Mutex
	pending []patch
}

// patch is an in-memory edit made while a reload was building. It is
// replayed onto the rebuilt snapshot.
type patch struct {
	id      string
	updates map[string]any
}

// New creates an engine. ingester may be nil, in which case an empty store
// is fatal at Init.
func New(store Store, ingester Ingester, logger *zap.Logger) *Engine {
	return &Engine{store: store, ingester: ingester, logger: logger}
}

// State returns the current lifecycle stage.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Init loads the store, bootstrapping it through the ingester when it has
// no messages, and publishes the first snapshot. It must complete before
// the engine is handed to readers.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		return ErrAlreadyInitialized
	}

	start := time.Now()
	snap, err := e.build(ctx)
	if err != nil {
		e.state.Store(int32(StateUninitialized))
		return err
	}
	e.patchMu.Lock()
	e.snap.Store(snap)
	e.state.Store(int32(StateReady))
	e.patchMu.Unlock()
	e.logger.Info("engine initialized",
		zap.Int("messages", len(snap.messages)),
		zap.Int("threads", len(snap.threadLengths)),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// Reload rebuilds the snapshot from the store. Readers keep the previous
// snapshot until the new one is complete; on failure it stays in place.
// Edits made through UpdateMessage while the build runs are replayed onto
// the new snapshot before it is published.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.patchMu.Lock()
	prev := e.State()
	if prev != StateReady {
		e.patchMu.Unlock()
		return fmt.Errorf("reload: engine is %s", prev)
	}
	e.state.Store(int32(StateReloading))
	e.patchMu.Unlock()

	start := time.Now()
	snap, err := e.build(ctx)

	e.patchMu.Lock()
	defer e.patchMu.Unlock()
	defer e.state.Store(int32(StateReady))
	if err != nil {
		// Pending edits already live in the kept snapshot.
		e.pending = nil
		e.logger.Error("reload failed, keeping previous snapshot", zap.Error(err))
		return fmt.Errorf("reload: %w", err)
	}
	for _, p := range e.pending {
		snap, _ = e.applyPatch(snap, p)
	}
	replayed := len(e.pending)
	e.pending = nil
	e.snap.Store(snap)
	e.logger.Info("engine reloaded",
		zap.Int("messages", len(snap.messages)),
		zap.Int("replayed_updates", replayed),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func (e *Engine) build(ctx context.Context) (*snapshot, error) {
	n, err := e.store.CountMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}
	if n == 0 {
		if err := e.bootstrap(ctx); err != nil {
			return nil, err
		}
	}

	msgs, err := e.store.LoadMessages(ctx)
	if err != nil {
		return nil, err
	}
	refs, fails, err := e.loadOrComputeEvents(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return newSnapshot(msgs, refs, fails), nil
}

func (e *Engine) bootstrap(ctx context.Context) error {
	if e.ingester == nil {
		return ErrNoDataSource
	}
	e.logger.Info("message store is empty, running ingestion")
	if _, err := e.ingester.Run(ctx); err != nil {
		if errors.Is(err, pipeline.ErrNoRawInput) {
			return fmt.Errorf("%w: %v", ErrNoDataSource, err)
		}
		return fmt.Errorf("bootstrap ingestion: %w", err)
	}
	return nil
}

// loadOrComputeEvents returns the stored event tables, recomputing and
// persisting both when either is empty while messages exist.
func (e *Engine) loadOrComputeEvents(ctx context.Context, msgs []database.Message) ([]database.Referral, []database.Failure, error) {
	refs, err := e.store.LoadReferrals(ctx)
	if err != nil {
		return nil, nil, err
	}
	fails, err := e.store.LoadFailures(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(msgs) == 0 || (len(refs) > 0 && len(fails) > 0) {
		return refs, fails, nil
	}

	e.logger.Info("event tables missing or stale, recomputing",
		zap.Int("referrals", len(refs)),
		zap.Int("failures", len(fails)),
	)
	refs, fails, err = detect.DetectAll(ctx, msgs)
	if err != nil {
		return nil, nil, fmt.Errorf("recomputing events: %w", err)
	}
	if err := e.store.ReplaceEvents(ctx, refs, fails); err != nil {
		return nil, nil, fmt.Errorf("persisting events: %w", err)
	}
	return refs, fails, nil
}

// Messages returns a copy of the messages whose date falls within
// [from, to]. A nil bound is open. Messages without a date only appear when
// both bounds are nil.
func (e *Engine) Messages(from, to *time.Time) []database.Message {
	s := e.snap.Load()
	if s == nil {
		return nil
	}

	var lo, hi string
	if from != nil {
		lo = from.Format(database.DateLayout)
	}
	if to != nil {
		hi = to.Format(database.DateLayout)
	}

	out := make([]database.Message, 0, len(s.messages))
	for i := range s.messages {
		if database.InDateRange(s.messages[i].Date, lo, hi) {
			out = append(out, s.messages[i])
		}
	}
	return out
}

// Message returns one message by id.
func (e *Engine) Message(id string) (database.Message, bool) {
	s := e.snap.Load()
	if s == nil {
		return database.Message{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return database.Message{}, false
	}
	return s.messages[i], true
}

// ThreadMessages returns the turns of one thread in ordinal order.
func (e *Engine) ThreadMessages(threadID string) []database.Message {
	s := e.snap.Load()
	if s == nil {
		return nil
	}
	var out []database.Message
	for i := range s.messages {
		if s.messages[i].ThreadID == threadID {
			out = append(out, s.messages[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// Referrals returns the referral table.
func (e *Engine) Referrals() []database.Referral {
	s := e.snap.Load()
	if s == nil {
		return nil
	}
	return append([]database.Referral(nil), s.referrals...)
}

// Failures returns the failure table.
func (e *Engine) Failures() []database.Failure {
	s := e.snap.Load()
	if s == nil {
		return nil
	}
	return append([]database.Failure(nil), s.failures...)
}

// ThreadLength returns the number of messages in a thread, 0 if unknown.
func (e *Engine) ThreadLength(threadID string) int {
	s := e.snap.Load()
	if s == nil {
		return 0
	}
	return s.threadLengths[threadID]
}

// IsServilinea reports whether the thread was referred to a human channel.
func (e *Engine) IsServilinea(threadID string) bool {
	s := e.snap.Load()
	if s == nil {
		return false
	}
	_, ok := s.servilinea[threadID]
	return ok
}

// HasEmptyMessages reports whether the thread contains a blank turn.
func (e *Engine) HasEmptyMessages(threadID string) bool {
	s := e.snap.Load()
	if s == nil {
		return false
	}
	_, ok := s.emptyText[threadID]
	return ok
}

// UpdateMessage patches one message in memory so a correction is visible
// right away. It neither persists nor recomputes event tables; call Reload
// after the store write for that. Unknown ids, unknown fields and values
// of the wrong type are ignored. It reports whether anything changed.
// It does not wait for a running Reload.
func (e *Engine) UpdateMessage(id string, updates map[string]any) bool {
	e.patchMu.Lock()
	defer e.patchMu.Unlock()

	s := e.snap.Load()
	if s == nil {
		return false
	}
	p := patch{id: id, updates: updates}
	if e.State() == StateReloading {
		e.pending = append(e.pending, p)
	}
	next, changed := e.applyPatch(s, p)
	if changed {
		e.snap.Store(next)
	}
	return changed
}

// applyPatch returns s with the patch applied, or s itself when nothing
// changed.
func (e *Engine) applyPatch(s *snapshot, p patch) (*snapshot, bool) {
	i, ok := s.byID[p.id]
	if !ok {
		e.logger.Debug("update for unknown message ignored", zap.String("id", p.id))
		return s, false
	}

	m := s.messages[i]
	changed := false
	for field, v := range p.updates {
		if applyField(&m, field, v) {
			changed = true
			continue
		}
		e.logger.Debug("update field ignored", zap.String("id", p.id), zap.String("field", field))
	}
	if !changed {
		return s, false
	}
	return s.withMessage(i, m), true
}

func applyField(m *database.Message, field string, v any) bool {
	switch field {
	case FieldCategory:
		if !setOptional(&m.Category, v) {
			return false
		}
		if m.Category != nil {
			m.ResolvedBy = database.ResolvedByManual
		}
		return true
	case FieldCategoryMacro:
		return setOptional(&m.CategoryMacro, v)
	case FieldProduct:
		return setOptional(&m.Product, v)
	case FieldProductMacro:
		return setOptional(&m.ProductMacro, v)
	case FieldSentiment:
		s, ok := v.(string)
		if ok {
			m.Sentiment = s
		}
		return ok
	case FieldText:
		s, ok := v.(string)
		if ok {
			m.Text = s
		}
		return ok
	case FieldRequiresReview:
		b, ok := v.(bool)
		if ok {
			m.RequiresReview = b
		}
		return ok
	}
	return false
}

func setOptional(dst **string, v any) bool {
	switch x := v.(type) {
	case nil:
		*dst = nil
	case string:
		*dst = &x
	case *string:
		if x == nil {
			*dst = nil
		} else {
			s := *x
			*dst = &s
		}
	default:
		return false
	}
	return true
}
