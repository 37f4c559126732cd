package main

import (
	"fmt"
	"log"

	"github.com/zulandar/onecall/internal/browser"
	"github.com/zulandar/onecall/internal/config"
	"github.com/zulandar/onecall/internal/db"
	"github.com/zulandar/onecall/internal/mailer"
	"github.com/zulandar/onecall/internal/notify"
	"github.com/zulandar/onecall/internal/registry"
	"github.com/zulandar/onecall/internal/script"
	"github.com/zulandar/onecall/internal/store"
	"github.com/zulandar/onecall/internal/submission"
	"github.com/zulandar/onecall/internal/telephony"
)

const defaultConfigPath = "onecall.yaml"

// app bundles the wired-up service dependencies shared by the CLI commands.
// Channels without credentials in the config are simply not registered; the
// orchestrator's fallback chain skips what isn't there.
type app struct {
	cfg          *config.Config
	store        *store.Store
	registry     *registry.Registry
	chrome       *browser.Chrome
	phone        *submission.PhoneAdapter
	orchestrator *submission.Orchestrator
}

func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Database.Database, err)
	}

	reg, err := registry.Load(cfg.DistrictsFile)
	if err != nil {
		return nil, fmt.Errorf("load districts: %w", err)
	}

	a := &app{
		cfg:      cfg,
		store:    store.New(gormDB),
		registry: reg,
		chrome:   browser.NewChrome(),
	}

	adapters, err := a.buildAdapters()
	if err != nil {
		return nil, err
	}
	orch, err := submission.NewOrchestrator(a.store, adapters, buildNotifier(cfg))
	if err != nil {
		return nil, err
	}
	a.orchestrator = orch
	return a, nil
}

func (a *app) buildAdapters() ([]submission.Adapter, error) {
	gen := script.NewOpenAIGenerator(a.cfg.AI.APIKey, a.cfg.AI.Model)

	adapters := []submission.Adapter{
		submission.NewAPIAdapter(submission.DefaultAPIConfigs()),
		submission.NewWebFormAdapter(a.chrome, gen),
	}

	if a.cfg.Mail.Host != "" {
		m, err := mailer.NewSMTP(a.cfg.Mail)
		if err != nil {
			return nil, fmt.Errorf("configure mailer: %w", err)
		}
		adapters = append(adapters, submission.NewEmailAdapter(m))
	}

	if a.cfg.Telephony.AccountSID != "" {
		gw, err := telephony.NewTwilioGateway(a.cfg.Telephony)
		if err != nil {
			return nil, fmt.Errorf("configure telephony: %w", err)
		}
		a.phone = submission.NewPhoneAdapter(gw, gen, gen)
		adapters = append(adapters, a.phone)
	}

	return adapters, nil
}

func buildNotifier(cfg *config.Config) submission.Notifier {
	if cfg.Notify.SlackToken == "" || cfg.Notify.SlackChannel == "" {
		return nil
	}
	n, err := notify.NewSlackNotifier(cfg.Notify.SlackToken, cfg.Notify.SlackChannel)
	if err != nil {
		log.Printf("oc: slack notifier disabled: %v", err)
		return nil
	}
	return n
}
