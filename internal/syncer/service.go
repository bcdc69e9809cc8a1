package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/arencloud/argus/internal/logging"
	"github.com/arencloud/argus/internal/models"
	"github.com/arencloud/argus/internal/pool"
	"github.com/arencloud/argus/internal/provider"
	"github.com/arencloud/argus/internal/store"
)

// Observer receives per-account progress during a provider sync pass. Used to
// reflect the pass into a tracked job; a nil Observer is allowed.
type Observer interface {
	StartUnit(unitID, label string)
	Progress(unitID string, percent int)
	FinishUnit(unitID string, errorCount int, err error)
}

type noopObserver struct{}

func (noopObserver) StartUnit(string, string)      {}
func (noopObserver) Progress(string, int)          {}
func (noopObserver) FinishUnit(string, int, error) {}

// Service owns the registered provider clients and runs whole-provider sync
// passes: catalog refresh first, then every active account through the
// orchestrator under bounded concurrency.
type Service struct {
	orch               *Orchestrator
	store              *store.Store
	accountConcurrency int
	log                logging.Logger

	mu      sync.RWMutex
	clients map[string]provider.Client
}

func NewService(orch *Orchestrator, st *store.Store, accountConcurrency int, log logging.Logger) *Service {
	if accountConcurrency < 1 {
		accountConcurrency = 1
	}
	return &Service{
		orch:               orch,
		store:              st,
		accountConcurrency: accountConcurrency,
		log:                log,
		clients:            map[string]provider.Client{},
	}
}

func (s *Service) Register(c provider.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.Name()] = c
}

func (s *Service) Client(name string) (provider.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[name]
	return c, ok
}

// Providers returns registered provider names, sorted.
func (s *Service) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.clients))
	for n := range s.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RefreshCatalog mirrors the provider's configured accounts into the store.
// It fails as a whole: a catalog that cannot be read must not tombstone
// accounts.
func (s *Service) RefreshCatalog(ctx context.Context, client provider.Client) ([]models.Account, error) {
	accts, err := client.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: list accounts: %w", client.Name(), err)
	}
	if err := s.store.UpsertAccounts(ctx, client.Name(), accts); err != nil {
		return nil, fmt.Errorf("%s: mirror accounts: %w", client.Name(), err)
	}
	return accts, nil
}

// SyncProvider runs one full pass for a provider. Account-level failures are
// reflected in the results and the observer, never aborting sibling accounts.
func (s *Service) SyncProvider(ctx context.Context, name string, force bool, obs Observer) ([]Result, error) {
	client, ok := s.Client(name)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	if obs == nil {
		obs = noopObserver{}
	}
	if _, err := s.RefreshCatalog(ctx, client); err != nil {
		return nil, err
	}
	accts, err := s.store.ListAccounts(ctx, name, true)
	if err != nil {
		return nil, fmt.Errorf("%s: load accounts: %w", name, err)
	}

	outcomes := pool.Map(ctx, accts, s.accountConcurrency, func(ctx context.Context, acct models.Account) (Result, error) {
		obs.StartUnit(acct.AccountID, acct.DisplayName)
		res, err := s.orch.SyncAccount(ctx, client, acct, force)
		obs.Progress(acct.AccountID, 100)
		obs.FinishUnit(acct.AccountID, res.ErrorCount, err)
		return res, err
	})

	results := make([]Result, 0, len(outcomes))
	failed := 0
	for i, out := range outcomes {
		if out.Err != nil {
			failed++
			results = append(results, Result{AccountID: accts[i].AccountID, Scanned: true, HadError: true, ErrorCount: 1})
			continue
		}
		results = append(results, out.Value)
	}
	s.log.Info("provider sync pass done", "provider", name, "accounts", len(accts), "failed", failed, "force", force)
	return results, nil
}

// SyncAll runs a pass over every registered provider, sequentially; accounts
// inside each provider still fan out. Errors are logged per provider, not
// returned, so one broken provider cannot stall the schedule of the others.
func (s *Service) SyncAll(ctx context.Context, force bool) {
	for _, name := range s.Providers() {
		if _, err := s.SyncProvider(ctx, name, force, nil); err != nil {
			s.log.Error("provider sync pass failed", "provider", name, "error", err)
		}
	}
}
