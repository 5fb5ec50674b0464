// Package server wires the alarmd components together and owns their
// lifecycle.
package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hklweb/alarmd/internal/alarm"
	"github.com/hklweb/alarmd/internal/api"
	"github.com/hklweb/alarmd/internal/conf"
	"github.com/hklweb/alarmd/internal/datastore"
	"github.com/hklweb/alarmd/internal/datastore/repository"
	"github.com/hklweb/alarmd/internal/fanout"
	"github.com/hklweb/alarmd/internal/logger"
	"github.com/hklweb/alarmd/internal/mqtt"
	"github.com/hklweb/alarmd/internal/observability"
)

const mqttConnectTimeout = 30 * time.Second

// Run starts every component and blocks until the context is
// cancelled, then shuts down in reverse order.
func Run(ctx context.Context, configPath string) error {
	settings, err := conf.Load(configPath)
	if err != nil {
		return err
	}

	log := newLogger(settings)
	log.Info("starting",
		logger.String("name", settings.Main.Name),
		logger.String("database", settings.Database.Driver),
		logger.String("broker", settings.MQTT.Broker))

	store, err := openDatastore(settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close database", logger.Error(err))
		}
	}()
	if err := store.Initialize(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	metrics := observability.NewMetrics()
	alarms := repository.NewAlarmRepository(store.DB())
	rules := repository.NewRuleRepository(store.DB())
	addresses := repository.NewAddressRepository(store.DB())

	states := alarm.NewStateStore()
	coordinator := alarm.NewCoordinator(
		alarm.SystemClock(),
		settings.Alarms.AckWindow.Std(),
		settings.Alarms.AckResetDelay.Std(),
		alarms, addresses, states, log)
	defer coordinator.Stop()

	evaluator := alarm.NewEvaluator(settings.Alarms.EmitUnfulfilled)
	processor := alarm.NewProcessor(store.DB(), evaluator, states, coordinator, metrics, log)

	broker, err := mqtt.NewClient(settings, log)
	if err != nil {
		return fmt.Errorf("failed to build mqtt client: %w", err)
	}
	if err := broker.Subscribe(settings.MQTT.DataTopic, processor.HandleMessage); err != nil {
		return err
	}
	connectCtx, cancelConnect := context.WithTimeout(ctx, mqttConnectTimeout)
	defer cancelConnect()
	if err := broker.Connect(connectCtx); err != nil {
		return err
	}
	defer broker.Disconnect()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	status := alarm.NewStatusPublisher(alarms, broker, settings.MQTT.StatusTopic,
		settings.Alarms.StatusInterval.Std(), metrics, log)
	go status.Run(runCtx)

	broadcaster := fanout.NewBroadcaster(alarms, coordinator,
		settings.Alarms.FanoutInterval.Std(), settings.Alarms.HistorySnapshot, metrics, log)
	go broadcaster.Run(runCtx)

	controller := api.New(settings, alarms, rules, addresses, coordinator, broadcaster, metrics, log)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- controller.Start()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	cancel()
	if err := controller.Shutdown(context.Background()); err != nil {
		log.Error("http shutdown failed", logger.Error(err))
	}
	return nil
}

func newLogger(settings *conf.Settings) logger.Logger {
	level := logger.LogLevel(settings.Main.LogLevel)
	return logger.NewSlogLogger(os.Stdout, level, &logger.Options{
		JSON: settings.Main.LogJSON,
	})
}

func openDatastore(settings *conf.Settings) (*datastore.Manager, error) {
	cfg := datastore.Config{
		Path: settings.Database.Path,
		DSN:  settings.Database.DSN,
	}
	if settings.Database.Driver == "mysql" {
		return datastore.NewMySQLManager(cfg)
	}
	return datastore.NewSQLiteManager(cfg)
}
