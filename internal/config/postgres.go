package config

import "fmt"

// DBConfig содержит параметры подключения к базе данных PostgreSQL.
type DBConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"name"`
	SSLMode  string `koanf:"ssl_mode"`
}

// ConnectionString возвращает DSN (Data Source Name) для подключения к PostgreSQL.
func (c *DBConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}
