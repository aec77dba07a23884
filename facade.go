package crminstall

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-crm-install/adapters/gojob"
	"github.com/goliatone/go-crm-install/adapters/gologger"
	"github.com/goliatone/go-crm-install/command"
	"github.com/goliatone/go-crm-install/contacts"
	"github.com/goliatone/go-crm-install/core"
	"github.com/goliatone/go-crm-install/inbound"
	"github.com/goliatone/go-crm-install/install"
	"github.com/goliatone/go-crm-install/providers/leadconnector"
	"github.com/goliatone/go-crm-install/queue"
	"github.com/goliatone/go-crm-install/refresh"
	sqlstore "github.com/goliatone/go-crm-install/store/sql"
	jobqueue "github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

// PlatformClient is the full CRM platform surface the service needs. The
// leadconnector client satisfies it; tests swap in fakes.
type PlatformClient interface {
	core.CredentialExchanger
	core.LocationTokenExchanger
	core.LocationDirectory
}

// Commands groups the command handlers the facade exposes for dispatcher
// registration.
type Commands struct {
	InstallCompany  *command.InstallCompanyCommand
	InstallLocation *command.InstallLocationCommand
	ContactCreate   *command.ContactCreateCommand
	RefreshSweep    *command.RefreshSweepCommand
}

// Service is the composed install module: stores, platform client, task
// runner, webhook dispatcher and the refresh scheduler, wired from one
// resolved config.
type Service struct {
	config         core.Config
	logger         core.Logger
	loggerProvider core.LoggerProvider

	stores     sqlstore.StoreProvider
	locations  core.LocationStore
	platform   PlatformClient
	claims     core.IdempotencyClaimStore
	runner     *queue.Runner
	tasks      core.TaskQueue
	dispatcher *inbound.Dispatcher
	contacts   *contacts.Handler
	installer  *install.Orchestrator
	sweeper    *refresh.Sweeper
	scheduler  *refresh.Scheduler
	commands   Commands
}

type serviceBuilder struct {
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	persistenceClient any
	storeProvider     sqlstore.StoreProvider
	claimStore        core.IdempotencyClaimStore
	locker            core.SubjectLocker
	platform          PlatformClient
	enricher          contacts.Enricher
	locationCache     repositorycache.CacheService
	brokerEnqueuer    jobqueue.Enqueuer
}

type Option func(*serviceBuilder)

func WithLogger(logger core.Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

// WithPersistenceClient accepts a go-persistence-bun client or a *bun.DB;
// the repository factory builds the stores from it.
func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithStoreProvider(provider sqlstore.StoreProvider) Option {
	return func(b *serviceBuilder) {
		b.storeProvider = provider
	}
}

func WithClaimStore(store core.IdempotencyClaimStore) Option {
	return func(b *serviceBuilder) {
		b.claimStore = store
	}
}

func WithSubjectLocker(locker core.SubjectLocker) Option {
	return func(b *serviceBuilder) {
		b.locker = locker
	}
}

func WithPlatformClient(client PlatformClient) Option {
	return func(b *serviceBuilder) {
		b.platform = client
	}
}

func WithContactEnricher(enricher contacts.Enricher) Option {
	return func(b *serviceBuilder) {
		b.enricher = enricher
	}
}

// WithLocationCache layers read-through caching over the location store.
func WithLocationCache(cacheService repositorycache.CacheService) Option {
	return func(b *serviceBuilder) {
		b.locationCache = cacheService
	}
}

// WithBrokerEnqueuer routes fire-and-forget tasks through an external go-job
// broker. The in-process runner still executes awaited exchanges.
func WithBrokerEnqueuer(enqueuer jobqueue.Enqueuer) Option {
	return func(b *serviceBuilder) {
		b.brokerEnqueuer = enqueuer
	}
}

// Setup resolves config through the provider/resolver chain and composes the
// full service. The runtime config argument is the highest-priority layer.
func Setup(ctx context.Context, runtime core.Config, opts ...Option) (*Service, error) {
	builder := serviceBuilder{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	if builder.configProvider == nil {
		builder.configProvider = core.NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = core.GoOptionsResolver{}
	}

	defaults := core.DefaultConfig()
	loaded, err := builder.configProvider.Load(ctx, defaults)
	if err != nil {
		return nil, fmt.Errorf("crminstall: config load failed: %w", err)
	}
	cfg, err := builder.optionsResolver.Resolve(defaults, loaded, runtime)
	if err != nil {
		return nil, fmt.Errorf("crminstall: config resolve failed: %w", err)
	}

	provider, logger := gologger.Resolve(gologger.ServiceLoggerName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(gologger.ServiceLoggerName); named != nil {
			logger = glog.Ensure(named)
		}
	}

	stores := builder.storeProvider
	if stores == nil && builder.persistenceClient != nil {
		stores, err = sqlstore.NewRepositoryFactory().BuildStores(builder.persistenceClient)
		if err != nil {
			return nil, err
		}
	}
	if stores == nil {
		return nil, fmt.Errorf("crminstall: a store provider or persistence client is required")
	}

	locations := stores.LocationStore()
	if builder.locationCache != nil {
		locations, err = sqlstore.NewCachedLocationStore(locations, builder.locationCache)
		if err != nil {
			return nil, err
		}
	}

	platform := builder.platform
	if platform == nil {
		platform, err = leadconnector.NewClient(leadconnector.Config{
			ClientID:              cfg.OAuth.ClientID,
			ClientSecret:          cfg.OAuth.ClientSecret,
			AppID:                 cfg.OAuth.AppID,
			TokenURL:              cfg.OAuth.TokenURL,
			LocationTokenURL:      cfg.OAuth.LocationTokenURL,
			InstalledLocationsURL: cfg.OAuth.InstalledLocationsURL,
			PageLimit:             cfg.Install.PageLimit,
		})
		if err != nil {
			return nil, err
		}
	}

	claims := builder.claimStore
	if claims == nil {
		claims = inbound.NewInMemoryClaimStore()
	}

	runner := queue.NewRunner(
		queue.WithLogger(componentLogger(provider, logger, gologger.QueueLoggerName)),
		queue.WithClaimStore(claims),
	)

	var tasks core.TaskQueue = runner
	if builder.brokerEnqueuer != nil {
		adapter, err := gojob.NewTaskQueueAdapter(builder.brokerEnqueuer, runner)
		if err != nil {
			return nil, err
		}
		tasks = adapter
	}

	installer, err := install.NewLocationInstaller(platform, locations, componentLogger(provider, logger, gologger.InstallLoggerName))
	if err != nil {
		return nil, err
	}
	orchestrator, err := install.NewOrchestrator(
		platform,
		platform,
		stores.CompanyStore(),
		installer,
		tasks,
		install.WithChunkSize(cfg.Install.ChunkSize),
		install.WithQueueName(cfg.Install.Queue),
		install.WithLogger(componentLogger(provider, logger, gologger.InstallLoggerName)),
	)
	if err != nil {
		return nil, err
	}

	contactOptions := []contacts.Option{
		contacts.WithLogger(componentLogger(provider, logger, gologger.ContactsLoggerName)),
	}
	if builder.enricher != nil {
		contactOptions = append(contactOptions, contacts.WithEnricher(builder.enricher))
	}
	contactHandler, err := contacts.NewHandler(locations, stores.ContactStore(), contactOptions...)
	if err != nil {
		return nil, err
	}

	if err := install.RegisterTasks(runner, orchestrator, contactHandler, platform); err != nil {
		return nil, err
	}

	dispatcher := inbound.NewDispatcher(tasks, claims, componentLogger(provider, logger, gologger.InboundLoggerName))

	sweeperOptions := []refresh.SweeperOption{
		refresh.WithLookahead(time.Duration(cfg.Refresh.LookaheadSeconds) * time.Second),
		refresh.WithBudget(time.Duration(cfg.Refresh.BudgetSeconds) * time.Second),
		refresh.WithTaskQueue(tasks),
		refresh.WithSweeperLogger(componentLogger(provider, logger, gologger.RefreshLoggerName)),
	}
	if builder.locker != nil {
		sweeperOptions = append(sweeperOptions, refresh.WithLocker(builder.locker))
	}
	sweeper, err := refresh.NewSweeper(stores.CompanyStore(), locations, platform, sweeperOptions...)
	if err != nil {
		return nil, err
	}
	scheduler, err := refresh.NewScheduler(
		sweeper,
		refresh.WithInterval(time.Duration(cfg.Refresh.IntervalSeconds)*time.Second),
		refresh.WithSchedulerLogger(componentLogger(provider, logger, gologger.SchedulerLoggerName)),
	)
	if err != nil {
		return nil, err
	}

	service := &Service{
		config:         cfg,
		logger:         logger,
		loggerProvider: provider,
		stores:         stores,
		locations:      locations,
		platform:       platform,
		claims:         claims,
		runner:         runner,
		tasks:          tasks,
		dispatcher:     dispatcher,
		contacts:       contactHandler,
		installer:      orchestrator,
		sweeper:        sweeper,
		scheduler:      scheduler,
	}
	service.commands = Commands{
		InstallCompany:  command.NewInstallCompanyCommand(orchestrator),
		InstallLocation: command.NewInstallLocationCommand(orchestrator),
		ContactCreate:   command.NewContactCreateCommand(contactHandler),
		RefreshSweep:    command.NewRefreshSweepCommand(sweeper),
	}
	return service, nil
}

func componentLogger(provider core.LoggerProvider, fallback core.Logger, name string) core.Logger {
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			return glog.Ensure(named)
		}
	}
	return glog.Ensure(fallback)
}

// Start launches the refresh scheduler. Webhook and install traffic needs no
// startup; the dispatcher and commands are usable as soon as Setup returns.
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.scheduler == nil {
		return fmt.Errorf("crminstall: service is not configured")
	}
	return s.scheduler.Start(ctx)
}

// Stop halts the refresh scheduler and drains in-flight runner tasks.
func (s *Service) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil {
			return err
		}
	}
	if s.runner != nil {
		s.runner.Wait()
	}
	return nil
}

func (s *Service) Config() core.Config {
	if s == nil {
		return core.Config{}
	}
	return s.config
}

func (s *Service) Commands() Commands {
	if s == nil {
		return Commands{}
	}
	return s.commands
}

func (s *Service) Dispatcher() *inbound.Dispatcher {
	if s == nil {
		return nil
	}
	return s.dispatcher
}

func (s *Service) Installer() *install.Orchestrator {
	if s == nil {
		return nil
	}
	return s.installer
}

func (s *Service) Contacts() *contacts.Handler {
	if s == nil {
		return nil
	}
	return s.contacts
}

func (s *Service) Sweeper() *refresh.Sweeper {
	if s == nil {
		return nil
	}
	return s.sweeper
}

func (s *Service) Runner() *queue.Runner {
	if s == nil {
		return nil
	}
	return s.runner
}

func (s *Service) Tasks() core.TaskQueue {
	if s == nil {
		return nil
	}
	return s.tasks
}

func (s *Service) Stores() sqlstore.StoreProvider {
	if s == nil {
		return nil
	}
	return s.stores
}
