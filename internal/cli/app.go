package cli

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"parnass/internal/config"
	"parnass/internal/database"
	"parnass/internal/events"
	"parnass/internal/pkg/logger"
	"parnass/internal/repository"
)

// app holds what every command needs: configuration, a logger and the database.
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

func bootstrap(migrate bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
		Development: cfg.Log.Development,
		OutputPath:  "stdout",
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if migrate {
		if err := repository.AutoMigrate(db); err != nil {
			return nil, err
		}
		log.Info("database migrated")
	}

	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.log.Sync()
}

// publisher builds the configured broker publisher. The caller closes it.
func (a *app) publisher() (events.Publisher, error) {
	ev := a.cfg.Events
	switch ev.Driver {
	case config.EventsKafka:
		p, err := events.NewKafkaPublisher(ev.KafkaBrokers, ev.KafkaClientID, ev.KafkaPrefix)
		if err != nil {
			return nil, err
		}
		a.log.Info("publishing events to kafka", zap.Strings("brokers", ev.KafkaBrokers))
		return p, nil
	case config.EventsAMQP:
		p, err := events.NewAMQPPublisher(ev.AMQPURL, ev.AMQPExchange)
		if err != nil {
			return nil, err
		}
		a.log.Info("publishing events to rabbitmq", zap.String("exchange", ev.AMQPExchange))
		return p, nil
	}
	return events.Noop{}, nil
}
