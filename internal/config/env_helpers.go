package config

import (
	"os"
	"strconv"
	"strings"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setIntFromEnv(key string, setter func(int)) {
	if v := getenv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			setter(n)
		}
	}
}

func setToggleFromEnv(key string, setter func(bool)) {
	v := strings.ToLower(strings.TrimSpace(getenv(key, "")))
	if v == "" {
		return
	}
	switch v {
	case "1", "true", "yes", "on":
		setter(true)
	case "0", "false", "no", "off":
		setter(false)
	}
}
