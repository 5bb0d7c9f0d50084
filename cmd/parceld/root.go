package main

import (
	"strings"

	"github.com/spf13/viper"
)

// envReplacer replaces `-` with `_`.
// This is used to map flags like `--db-type` to environment variables like
// `PARCELD_DB_TYPE`.
var envReplacer = strings.NewReplacer("-", "_")

func init() {
	viper.SetEnvPrefix("PARCELD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(envReplacer)
}
