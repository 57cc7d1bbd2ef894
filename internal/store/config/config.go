package config

type Config struct {
	// RedisURL в формате redis://[:password@]host:port/db
	RedisURL string
}
