package config

// Chat definition chat_service YAML structure
type Chat struct {
	Port   string         `mapstructure:"port"`
	Mongo  DatabaseConfig `mapstructure:"mongo"`
	Redis  RedisConfig    `mapstructure:"redis"`
	Typing TypingConfig   `mapstructure:"typing"`
}

// TypingConfig typing broadcaster windows, milliseconds
type TypingConfig struct {
	DebounceMS int `mapstructure:"debounce_ms"`
	StaleMS    int `mapstructure:"stale_ms"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}
