package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/clients"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/config"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/db"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/handlers"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/repository"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/services"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer wires repositories, clients and services once and
// exposes them to the router and cmd layers.
type ServiceContainer struct {
	DB     *gorm.DB
	Logger *logrus.Logger

	// Repositories
	FieldmapRepo  repository.FieldmapRepository
	ObjectMapRepo repository.ObjectMapRepository
	TransientRepo repository.TransientRepository
	SyncEventRepo repository.SyncEventRepository
	SettingRepo   repository.SettingRepository

	// Clients
	SalesforceClient *clients.SalesforceClient
	WordPressClient  *clients.WordPressClient
	NATSPublisher    *clients.NATSPublisher

	// Services
	FormService         *services.FormService
	PushService         *services.PushService
	PullService         *services.PullService
	ActivityFeedService *services.ActivityFeedService

	// Handlers
	AdminAuthHandler *handlers.AdminAuthHandler
	MappingsHandler  *handlers.MappingsHandler
	SyncHandler      *handlers.SyncHandler
	SettingsHandler  *handlers.SettingsHandler
}

var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container exactly once.
func InitializeContainer() (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		container := &ServiceContainer{
			DB:     db.DB,
			Logger: logrus.StandardLogger(),
		}

		container.initRepositories()
		container.initClients()
		container.initServices()
		container.initHandlers()

		Container = container
		log.Println("Service container initialized")
	})

	return Container, initErr
}

func (c *ServiceContainer) initRepositories() {
	c.FieldmapRepo = repository.NewFieldmapRepository(c.DB)
	c.ObjectMapRepo = repository.NewObjectMapRepository(c.DB)
	c.TransientRepo = repository.NewTransientRepository(c.DB)
	c.SyncEventRepo = repository.NewSyncEventRepository(c.DB)
	c.SettingRepo = repository.NewSettingRepository(c.DB)
}

func (c *ServiceContainer) initClients() {
	c.SalesforceClient = clients.NewSalesforceClient()
	c.WordPressClient = clients.NewWordPressClient()

	// NATS is optional: no URL, no event publication.
	if config.AppConfig != nil && config.AppConfig.NATS.URL != "" {
		publisher, err := clients.NewNATSPublisher(config.AppConfig.NATS.URL, config.AppConfig.NATS.SubjectPrefix)
		if err != nil {
			c.Logger.WithError(err).Warn("NATS connection failed, sync events will not be published")
		} else {
			c.NATSPublisher = publisher
		}
	}
}

func (c *ServiceContainer) initServices() {
	transientTTL := time.Duration(0)
	pullInterval := time.Duration(0)
	pullBatchSize := 0
	if config.AppConfig != nil {
		transientTTL = time.Duration(config.AppConfig.Sync.TransientTTLSeconds) * time.Second
		pullInterval = time.Duration(config.AppConfig.Sync.PullIntervalMinutes) * time.Minute
		pullBatchSize = config.AppConfig.Sync.PullBatchSize
	}

	c.ActivityFeedService = services.NewActivityFeedService(c.Logger)

	c.FormService = services.NewFormService(
		c.FieldmapRepo,
		c.ObjectMapRepo,
		c.TransientRepo,
		transientTTL,
		config.Version,
		c.Logger,
	)

	c.PushService = services.NewPushService(
		c.FieldmapRepo,
		c.ObjectMapRepo,
		c.SyncEventRepo,
		c.SalesforceClient,
		c.WordPressClient,
		c.NATSPublisher,
		c.ActivityFeedService,
		c.Logger,
	)

	c.PullService = services.NewPullService(
		c.FieldmapRepo,
		c.ObjectMapRepo,
		c.SyncEventRepo,
		c.SettingRepo,
		c.SalesforceClient,
		c.WordPressClient,
		c.NATSPublisher,
		c.ActivityFeedService,
		pullBatchSize,
		pullInterval,
		c.Logger,
	)
}

func (c *ServiceContainer) initHandlers() {
	c.AdminAuthHandler = handlers.NewAdminAuthHandler()
	c.MappingsHandler = handlers.NewMappingsHandler(c.FormService, c.FieldmapRepo, c.ObjectMapRepo, c.Logger)
	c.SyncHandler = handlers.NewSyncHandler(c.PushService, c.PullService, c.SyncEventRepo, c.ActivityFeedService, c.Logger)
	c.SettingsHandler = handlers.NewSettingsHandler(c.SettingRepo, c.SalesforceClient, c.Logger)
}

// Start launches background work: the pull scheduler and the database
// pool metrics exporter.
func (c *ServiceContainer) Start(ctx context.Context) {
	c.PullService.Start(ctx)
	db.StartPoolMetrics(30 * time.Second)
}

// Cleanup releases external connections.
func (c *ServiceContainer) Cleanup() error {
	c.PullService.Stop()

	if c.NATSPublisher != nil {
		c.NATSPublisher.Close()
	}

	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql.DB for cleanup: %w", err)
		}
		return sqlDB.Close()
	}
	return nil
}
