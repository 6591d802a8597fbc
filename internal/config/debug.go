package config

import "os"

func IsDebug() bool {
	return os.Getenv("KAI_DEBUG") == "1"
}

func IsJSONLog() bool {
	return os.Getenv("KAI_LOG_FORMAT") == "json"
}
