package config

import (
	"github.com/knadh/koanf/v2"
)

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"server.host":         "0.0.0.0",
		"server.port":         8080,
		"server.cors_origins": []string{"*"},

		"database.max_connections": 25,

		"auth.jwt_expiry":     "30m",
		"auth.admin_username": "admin",

		"storage.region":         "auto",
		"storage.presign_expiry": "1h",
		"storage.source_ttl":     "70m",

		"encoder.ffmpeg_binary":  "ffmpeg",
		"encoder.ffprobe_binary": "ffprobe",
		"encoder.max_concurrent": 3,
		"encoder.preset":         "fast",
		"encoder.hwaccel":        false,
		"encoder.run_timeout":    "0s",

		"limits.submit_burst":           3,
		"limits.submit_window":          "60s",
		"limits.max_upload_bytes":       1 << 30,
		"limits.default_capacity_bytes": 100 * 1024 * 1024,
		"limits.link_expiry":            "60m",
		"limits.share_expiry":           "168h",

		"logging.level": "info",
	}

	for key, val := range defaults {
		k.Set(key, val)
	}
	return nil
}
