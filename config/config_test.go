package config_test

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/next-trace/scg-cmdr/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CMDR_TRANSPORT", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Transport != config.TransportInMemory || cfg.MaxDepth != 64 || cfg.Level() != slog.LevelInfo {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoad_Lists(t *testing.T) {
	t.Setenv("CMDR_HANDLER_SOURCES", "ledger.accounts,ledger.audit")
	t.Setenv("CMDR_TRANSPORT", "kafka")
	t.Setenv("CMDR_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CMDR_LOG_LEVEL", "DEBUG")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(cfg.HandlerSources) != 2 || cfg.HandlerSources[1] != "ledger.audit" {
		t.Fatalf("sources=%v", cfg.HandlerSources)
	}

	if len(cfg.KafkaBrokers) != 2 || cfg.Level() != slog.LevelDebug {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]map[string]string{
		"bad int":         {"CMDR_MAX_DEPTH": "deep"},
		"zero depth":      {"CMDR_MAX_DEPTH": "0"},
		"unknown":         {"CMDR_TRANSPORT": "carrier-pigeon"},
		"rabbit no url":   {"CMDR_TRANSPORT": "rabbitmq"},
		"kafka no broker": {"CMDR_TRANSPORT": "kafka"},
	}

	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}

			if _, err := config.Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	t.Setenv("CMDR_MAX_DEPTH", "x")

	if _, err := config.Load(); err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("want parse env prefix, got %v", err)
	}
}
