package roostcmd

import (
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env holds the defaults for command line flags, taken from the environment.
type Env struct {
	ServerHost string `env:"SERVER_HOST" envDefault:"127.0.0.1"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"7070"`
	DBURL      string `env:"DB_URL" envDefault:"roost.db"`

	LogLevel string `env:"ROOST_LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"ROOST_LOG_FILE"`

	AdminAddr        string        `env:"ROOST_ADMIN_ADDR" envDefault:"127.0.0.1:7071"`
	Workers          int           `env:"ROOST_WORKERS" envDefault:"64"`
	HandshakeTimeout time.Duration `env:"ROOST_HANDSHAKE_TIMEOUT" envDefault:"30s"`
	Username         string        `env:"ROOST_USERNAME"`
}

func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, err
	}
	return e, nil
}

// ServerAddr is the host:port the server listens on, and clients dial.
func (e Env) ServerAddr() string {
	return net.JoinHostPort(e.ServerHost, strconv.Itoa(e.ServerPort))
}
