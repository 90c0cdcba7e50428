/*
Package logging configures the process-wide logger from configuration.
*/
package logging

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

/*
Setup applies the configured log level to the default logger. An
unknown or empty level leaves it at info.
*/
func Setup() {
	level, err := log.ParseLevel(viper.GetString("log.level"))

	if err != nil {
		level = log.InfoLevel
	}

	log.SetLevel(level)
	log.SetReportTimestamp(true)
}
