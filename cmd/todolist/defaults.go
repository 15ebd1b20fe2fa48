package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)

	viper.SetDefault("db.dsn", "")
	viper.SetDefault("db.auto_migrate", true)

	viper.SetDefault("server.bind", "127.0.0.1")
	viper.SetDefault("server.port", 8080)
}
