// Command dumpconfig prints the effective configuration with secrets masked.
package main

import (
	"flag"
	"os"

	"github.com/goccy/go-json"

	"github.com/ncecere/insights_dashboard/internal/config"
	"github.com/ncecere/insights_dashboard/internal/logging"
)

func main() {
	configFile := flag.String("config", "", "path to dashboard config file")
	flag.Parse()

	cfg, err := config.Load(config.Options{ConfigFile: *configFile})
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	redact(cfg)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		logging.Fatal().Err(err).Msg("encode config")
	}
}

func redact(cfg *config.Config) {
	mask := func(s *string) {
		if *s != "" {
			*s = "****"
		}
	}
	mask(&cfg.Database.URL)
	mask(&cfg.Redis.URL)
	mask(&cfg.Auth.Session.JWTSecret)
	mask(&cfg.Auth.OIDC.ClientSecret)
	mask(&cfg.Analytics.Warehouse.APIKey)
	mask(&cfg.Integrations.EncryptionKey)
	mask(&cfg.Integrations.IssueTracker.ClientSecret)
	mask(&cfg.Integrations.HRPlatform.APIKey)
	for i := range cfg.Bootstrap.Users {
		mask(&cfg.Bootstrap.Users[i].Password)
	}
}
