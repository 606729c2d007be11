package storage

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Server struct {
		Addr           string `yaml:"addr"`
		JWTSecret      string `yaml:"jwt_secret"`
		SessionHours   int    `yaml:"session_hours"`
		FrontendOrigin string `yaml:"frontend_origin"`
	} `yaml:"server"`

	Scraper struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"scraper"`

	LegalOne LegalOneConfig `yaml:"legal_one"`

	Export struct {
		APIURL string `yaml:"api_url"`
		Source string `yaml:"source"`
	} `yaml:"export"`

	Schedule struct {
		MonitorSpec  string `yaml:"monitor_spec"`
		ImportSpec   string `yaml:"import_spec"`
		BusinessFrom int    `yaml:"business_from"`
		BusinessTo   int    `yaml:"business_to"`
		ImportUserID int64  `yaml:"import_user_id"`
	} `yaml:"schedule"`
}

// LegalOneConfig holds credentials for the upstream task API.
type LegalOneConfig struct {
	BaseURL      string `yaml:"base_url"`
	AuthURL      string `yaml:"auth_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./onesid.db"
	cfg.Server.Addr = ":5000"
	cfg.Server.JWTSecret = "default-secret-key-for-dev"
	cfg.Server.SessionHours = 24
	cfg.Server.FrontendOrigin = "http://localhost:3000"
	cfg.LegalOne.AuthURL = "https://api.thomsonreuters.com/legalone/oauth?grant_type=client_credentials"
	cfg.Export.Source = "Onesid"
	cfg.Schedule.MonitorSpec = "@every 50m"
	cfg.Schedule.ImportSpec = "@every 2h"
	// Import/export only runs inside business hours, as the upstream API
	// schedules maintenance overnight.
	cfg.Schedule.BusinessFrom = 8
	cfg.Schedule.BusinessTo = 20
	cfg.Schedule.ImportUserID = 1
	return cfg
}
