package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8390,
		},
		Database: DatabaseConfig{
			Path: "~/.ordernotify/ordernotify.db",
		},
		Templates: TemplatesConfig{
			Path: "~/.ordernotify/templates.yaml",
		},
		Alerts: AlertsConfig{
			TelegramEnabled: false,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
