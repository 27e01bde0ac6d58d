package appbuilder

import (
	"fmt"

	"zk-tax-system/pkg/logger"
	"zk-tax-system/pkg/rabbitmq"
	"zk-tax-system/pkg/rest"
	"zk-tax-system/pkg/utilities"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
)

type AppConfig interface {
	GetLoggerConfig() logger.LoggerConfig
	GetRabbitmqConfig() rabbitmq.RabbitmqConfig
	GetRestApiPort() uint16
}

// AppBuilder assembles an Application step by step. A failing step panics,
// this only runs during process start.
type AppBuilder[T utilities.JsonConfigObj[U], U AppConfig] struct {
	Logger         *logger.Logger
	Config         U
	Conn           *amqp.Connection
	Registry       *rabbitmq.Registry
	workerServices []rabbitmq.WorkerService
	middlewares    []rest.Middleware
	routes         []rest.Route
	engine         *gin.Engine
	closers        []func() error
}

func New[T utilities.JsonConfigObj[U], U AppConfig]() *AppBuilder[T, U] {
	return &AppBuilder[T, U]{}
}

func (a *AppBuilder[T, U]) InitLogger(loggerArgs logger.GlobalLoggerConfig) *AppBuilder[T, U] {
	logger.InitDefaultLogger(loggerArgs)
	a.Logger = logger.Default()
	a.Logger.Info("Logger initialized")

	return a
}

// LoadConfig reads the config file and replaces the bootstrap logger with one built from it.
func (a *AppBuilder[T, U]) LoadConfig(filePath string) *AppBuilder[T, U] {
	a.Logger.Infof("Preparing to load config from %s ...", filePath)
	config, err := utilities.ReadConfig[T, U](filePath)
	if err != nil {
		a.Logger.Error(err, "Failed to load config")
		panic(err)
	}

	a.Config = config
	a.Logger = logger.NewFromConfig(config.GetLoggerConfig())
	a.Logger.Info("Config successfully loaded.")
	return a
}

// WithOption runs an arbitrary construction step with access to the builder.
func (a *AppBuilder[T, U]) WithOption(option func(a *AppBuilder[T, U])) *AppBuilder[T, U] {
	option(a)
	return a
}

// InitRabbitmq connects and builds the registry. Skipped when messaging is disabled.
func (a *AppBuilder[T, U]) InitRabbitmq() *AppBuilder[T, U] {
	rabbitmqConfig := a.Config.GetRabbitmqConfig()
	if !rabbitmqConfig.Enabled {
		a.Logger.Warn("Rabbitmq disabled, events will not be published")
		return a
	}

	a.Logger.Info("Preparing to connect to Rabbitmq server...")
	conn, err := rabbitmq.ConnectToRabbitmq(rabbitmqConfig, a.Logger)
	if err != nil {
		panic(err)
	}
	a.Conn = conn
	a.OnClose(conn.Close)

	registry, err := rabbitmq.NewRegistry(conn, rabbitmqConfig, a.Logger)
	if err != nil {
		panic(err)
	}
	a.Registry = registry
	a.Logger.Info("Connection with Rabbitmq server established and registries initialized")

	return a
}

func (a *AppBuilder[T, U]) AddWorkerServices(workerServices ...rabbitmq.WorkerService) *AppBuilder[T, U] {
	a.Logger.Infof("Adding %d Worker Services to Application...", len(workerServices))
	a.workerServices = append(a.workerServices, workerServices...)
	return a
}

func (a *AppBuilder[T, U]) AddGinMiddleware(middlewares ...rest.Middleware) *AppBuilder[T, U] {
	a.middlewares = append(a.middlewares, middlewares...)
	return a
}

func (a *AppBuilder[T, U]) AddGinRoutes(routes ...rest.Route) *AppBuilder[T, U] {
	a.Logger.Infof("Adding %d Gin REST API routes to Application...", len(routes))
	a.routes = append(a.routes, routes...)
	return a
}

// OnClose registers a shutdown hook, run in reverse order.
func (a *AppBuilder[T, U]) OnClose(closer func() error) *AppBuilder[T, U] {
	a.closers = append(a.closers, closer)
	return a
}

func (a *AppBuilder[T, U]) InitGinRouter() *AppBuilder[T, U] {
	a.Logger.Info("Initializing Gin Router...")
	router := gin.New()
	router.Use(gin.Recovery())

	rest.Register(router, a.middlewares, a.routes)

	a.engine = router
	a.Logger.Info("Successfully registered REST API routes.")
	return a
}

func (a *AppBuilder[T, U]) Build() *Application {
	return &Application{
		Logger:         a.Logger,
		Addr:           fmt.Sprintf("0.0.0.0:%d", a.Config.GetRestApiPort()),
		WorkerServices: a.workerServices,
		Engine:         a.engine,
		closers:        a.closers,
	}
}
