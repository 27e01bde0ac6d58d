package appbuilder

import (
	"context"
	"errors"
	"net/http"
	"time"

	"zk-tax-system/pkg/logger"
	"zk-tax-system/pkg/rabbitmq"

	"github.com/gin-gonic/gin"
)

const shutdownGrace = 10 * time.Second

type Application struct {
	Logger         *logger.Logger
	Addr           string
	WorkerServices []rabbitmq.WorkerService
	Engine         *gin.Engine
	closers        []func() error
}

// Start runs worker services and the REST API until ctx is cancelled.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.Info("Starting Application runtime...")

	for _, ws := range a.WorkerServices {
		a.Logger.Infof("Starting %s WorkerService", ws.GetServiceName())
		go func(ws rabbitmq.WorkerService) {
			if err := ws.StartService(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Errorf(err, "%s WorkerService stopped", ws.GetServiceName())
			}
		}(ws)
	}

	server := &http.Server{Addr: a.Addr, Handler: a.Engine, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Infof("REST API is now listening on: %s", a.Addr)
		serveErr <- server.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serveErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		err = server.Shutdown(shutdownCtx)
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if cerr := a.closers[i](); cerr != nil {
			a.Logger.Error(cerr, "Shutdown hook failed")
		}
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
