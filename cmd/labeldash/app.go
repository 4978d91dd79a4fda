package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/viper"

	"github.com/nerrad567/labeldash/internal/infrastructure/config"
	"github.com/nerrad567/labeldash/internal/infrastructure/logging"
	"github.com/nerrad567/labeldash/internal/infrastructure/mqtt"
	"github.com/nerrad567/labeldash/internal/labels"
	"github.com/nerrad567/labeldash/internal/session"
)

// loadConfig reads the config file named by --config or LABELDASH_CONFIG.
//
// Without either, configs/config.yaml is used when present and built-in
// defaults otherwise, so print and watch work without any file.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	path := v.GetString("config")
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	var cfg *config.Config
	if _, err := os.Stat(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg, err = config.LoadDefault()
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}

	if level := v.GetString("log_level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// defaultSubscriptions are used when mqtt.subscriptions is empty: every
// printer's alive topic and this dashboard's delivery details.
func defaultSubscriptions(cfg *config.Config) []string {
	t := mqtt.Topics{}
	return []string{
		mqtt.JoinTopic(cfg.MQTT.Prefix, t.AllPrinterAlive()),
		mqtt.JoinTopic(cfg.MQTT.Prefix, t.DeliveryDetails(cfg.Dashboard.ID)),
	}
}

// sessionOptions tailors newSession for each command.
type sessionOptions struct {
	subscriptions []string
	messageAction session.MessageAction
	observer      session.Observer
}

// newSession wires the MQTT dialer, the label reducer and cfg into a
// session manager. The manager does nothing until Run is called.
func newSession(cfg *config.Config, log *logging.Logger, opts sessionOptions) (*session.Manager, error) {
	sessionLog := log.With("component", "session")
	statusTopic := mqtt.JoinTopic(cfg.MQTT.Prefix, mqtt.Topics{}.DashboardStatus(cfg.Dashboard.ID))
	dialer := mqtt.NewDialer(cfg.MQTT, statusTopic, log.With("component", "mqtt"))

	messageAction := opts.messageAction
	if messageAction == nil {
		messageAction = labels.NewMessageAction(cfg.MQTT.Prefix, sessionLog)
	}

	// #nosec G115 -- QoS validated to 0..2 by config.Validate
	qos := byte(cfg.MQTT.QoS)

	m, err := session.New(session.Config{
		Dial:                 func(clientID string) session.Transport { return dialer.Dial(clientID) },
		ClientIDPrefix:       cfg.MQTT.Broker.ClientIDPrefix,
		Prefix:               cfg.MQTT.Prefix,
		Subscriptions:        opts.subscriptions,
		InitialState:         labels.InitialState(),
		Reducer:              labels.Reducer,
		MessageAction:        messageAction,
		SubscribeQoS:         qos,
		SubscribeTimeout:     cfg.MQTT.SubscribeTimeout(),
		RetryInterval:        cfg.MQTT.SubscribeRetryInterval(),
		RedialInterval:       cfg.MQTT.RedialInterval(),
		MaxSubscribeAttempts: cfg.MQTT.Subscribe.MaxAttempts,
		Debug:                cfg.Debug,
		Logger:               sessionLog,
		Observer:             opts.observer,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return m, nil
}
