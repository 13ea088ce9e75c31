package env

import (
	"os"
)

const defaultConfigPath = "infra/configs/config.yaml"

// PodName example: k8ssta-auction-api-6868d88fbd-bz8zv
func PodName() string {
	return os.Getenv("PODNAME")
}

// EnvName example: k8ssta
func EnvName() string {
	return os.Getenv("ENV_NAME")
}

// AppName example: auction-api
func AppName() string {
	return os.Getenv("APP_NAME")
}

// ConfigPath is the yaml config location, APP_CONFIG overrides the default
func ConfigPath() string {
	if p := os.Getenv("APP_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}
