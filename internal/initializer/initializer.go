package initializer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/milkywaybrain/exchangeloader/internal/config"
	"github.com/milkywaybrain/exchangeloader/internal/connector"
	"github.com/milkywaybrain/exchangeloader/internal/exchange"
	"github.com/milkywaybrain/exchangeloader/internal/metrics"
	"github.com/milkywaybrain/exchangeloader/internal/selection"
	"github.com/milkywaybrain/exchangeloader/internal/server"
	"github.com/milkywaybrain/exchangeloader/internal/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"golang.org/x/sync/errgroup"
)

// Start will initialize various required systems and then execute the app.
func Start(mainCtx context.Context, cfg *config.Config) error {
	logFile, err := setupLogger(&cfg.Log)
	if err != nil {
		return err
	}
	defer logFile.Close()

	// Establish connections to the configured storage systems.
	stores, err := connectStores(cfg)
	if err != nil {
		return err
	}
	feed := websocketFeed(cfg)
	if feed != nil {
		defer feed.Close()
	}

	rest := connector.InitREST(&cfg.Connection.REST)
	log.Info().Str("url", cfg.Source.Endpoint()).Msg("REST connection setup is done")

	// The document starts with only the placeholder, a failed first load keeps it that way.
	widget := selection.NewSelect(cfg.Widget.Name, selection.Placeholder(cfg.Widget.Placeholder))
	doc := selection.NewDocument(widget)

	var store storage.Store
	if len(stores) > 0 {
		store = stores
	}
	loader := exchange.NewLoader(&cfg.Widget, exchange.NewRESTSource(rest, cfg.Source.Endpoint()), doc, store, log.Logger)
	loader.SetObserver(metrics.NewRecorder(cfg.Widget.Name))

	// Refresh loop and document server run together. If any of them fails, force the other to stop and
	// exit the app.
	appErrGroup, appCtx := errgroup.WithContext(mainCtx)

	appErrGroup.Go(func() error {
		return loader.Run(appCtx, time.Duration(cfg.Refresh.IntervalSec)*time.Second)
	})

	if cfg.Server.Address != "" {
		var feedHandler http.Handler
		if feed != nil {
			feedHandler = feed
		}
		srv := server.New(&cfg.Widget, loader, doc, feedHandler, log.Logger)
		appErrGroup.Go(func() error {
			return srv.ListenAndServe(appCtx, cfg.Server.Address)
		})
	}

	err = appErrGroup.Wait()
	if err != nil {
		if mainCtx.Err() != nil && errors.Is(err, mainCtx.Err()) {
			log.Info().Msg("app stopped")
			return nil
		}
		log.Error().Stack().Err(err).Msg("exiting the app")
		return err
	}
	return nil
}

// setupLogger points the global logger to a log file.
// If the path given in the config for logging ends with .log then create a log file with the same name and
// write log messages to it. Otherwise, create a new log file with a timestamp attached to it's name in the given path.
func setupLogger(cfg *config.Log) (*os.File, error) {
	var (
		logFile *os.File
		err     error
	)
	if strings.HasSuffix(cfg.FilePath, ".log") {
		logFile, err = os.OpenFile(cfg.FilePath, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0666)
		if err != nil {
			return nil, fmt.Errorf("not able to open or create log file: %v", cfg.FilePath)
		}
	} else {
		name := cfg.FilePath + "_" + strconv.Itoa(int(time.Now().Unix())) + ".log"
		logFile, err = os.Create(name)
		if err != nil {
			return nil, fmt.Errorf("not able to create log file: %v", name)
		}
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	switch cfg.Level {
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Logger = zerolog.New(logFile).With().Timestamp().Logger()
	log.Info().Msg("logger setup is done")
	return logFile, nil
}

// connectStores initializes every configured storage.
func connectStores(cfg *config.Config) (storage.Multi, error) {
	var (
		stores storage.Multi
		str    storage.Store
		err    error
	)
	seen := make(map[string]bool, len(cfg.Storages))
	for _, name := range cfg.Storages {
		if seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case config.TERMINAL:
			str = storage.InitTerminal(os.Stdout, &cfg.Connection.Terminal)
		case config.MYSQL:
			str, err = storage.InitMySQL(&cfg.Connection.MySQL)
		case config.ELASTICSEARCH:
			str, err = storage.InitElasticSearch(&cfg.Connection.ES)
		case config.INFLUXDB:
			str, err = storage.InitInfluxDB(&cfg.Connection.InfluxDB)
		case config.NATSSTORAGE:
			str, err = storage.InitNATS(&cfg.Connection.NATS)
		case config.CLICKHOUSE:
			str, err = storage.InitClickHouse(&cfg.Connection.ClickHouse)
		case config.S3STORAGE:
			str, err = storage.InitS3(&cfg.Connection.S3)
		case config.WEBSOCKET:
			str = storage.InitWebSocket(&cfg.Connection.WS)
		default:
			err = errors.Errorf("unknown storage %q", name)
		}
		if err != nil {
			err = errors.Wrap(err, name+" connection")
			log.Error().Stack().Err(errors.WithStack(err)).Msg("")
			return nil, err
		}
		stores = append(stores, str)
		log.Info().Msg(name + " connected")
	}
	return stores, nil
}

// websocketFeed returns the connected websocket store, which the document
// server also serves, or nil when it is not configured.
func websocketFeed(cfg *config.Config) *storage.WebSocket {
	if !cfg.HasStorage(config.WEBSOCKET) {
		return nil
	}
	str, ok := storage.Get(config.WEBSOCKET)
	if !ok {
		return nil
	}
	feed, _ := str.(*storage.WebSocket)
	return feed
}
