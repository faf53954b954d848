package database

import (
	"net/url"
	"time"
)

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	DBName   string
	SSLMode  string

	MaxConns       int32
	ConnectTimeout time.Duration
}

// TargetDSN builds a URL-encoded postgres DSN.
func (c DBConfig) TargetDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/" + c.DBName,
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		// local development default
		sslmode = "disable"
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c DBConfig) complete() bool {
	return c.User != "" && c.Host != "" && c.Port != "" && c.DBName != ""
}
