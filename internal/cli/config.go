package cli

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

const (
	envLogLevel  = "GEOEXPORT_LOG_LEVEL"
	envLogFormat = "GEOEXPORT_LOG_FORMAT"
	envAddr      = "GEOEXPORT_ADDR"
	envWorkers   = "GEOEXPORT_WORKERS"
	envCache     = "GEOEXPORT_CACHE"
)

// getConfigString gets a string value from flag, then env, then default.
func getConfigString(cmd *cobra.Command, flagName, envName, defaultValue string) string {
	if cmd.Flags().Changed(flagName) {
		val, _ := cmd.Flags().GetString(flagName)
		return val
	}
	if v := os.Getenv(envName); v != "" {
		return v
	}
	return defaultValue
}

// getConfigInt gets an int value from flag, then env, then default. An
// unparsable env value is ignored.
func getConfigInt(cmd *cobra.Command, flagName, envName string, defaultValue int) int {
	if cmd.Flags().Changed(flagName) {
		val, _ := cmd.Flags().GetInt(flagName)
		return val
	}
	if v := os.Getenv(envName); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
