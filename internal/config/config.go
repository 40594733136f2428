package config

import "os"

type Config struct {
	HTTPAddr     string
	MySQLDSN     string
	RedisAddr    string
	KafkaBrokers string
	ErrorLogPath string
}

// Load reads configuration from the environment, falling back to local
// development defaults. KafkaBrokers may be empty, which disables event
// publishing.
func Load() Config {
	return Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		MySQLDSN:     getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/storefront?parseTime=true"),
		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		ErrorLogPath: getenv("ERROR_LOG_PATH", "error.log"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
