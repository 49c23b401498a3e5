package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the service configuration assembled from the environment.
type Config struct {
	// API server.
	Port       int
	CORSOrigin string
	RateLimit  int // requests per minute per client, 0 disables

	// HLS media server and the host players reach it on.
	HTTPPort   int
	PublicHost string

	// Ingest.
	StreamKey      string
	RTMPHost       string
	RTMPPort       int
	IngestAPIURL   string
	IngestAPIToken string

	// Transcoding.
	HLSPath           string
	SegmentSeconds    int
	ListSize          int
	AudioBitrate      string
	FFmpegPath        string
	FFmpegKillTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// FromEnv reads the configuration from environment variables, applying defaults.
func FromEnv() Config {
	return Config{
		Port:       GetEnvInt("PORT", 3000),
		CORSOrigin: GetEnv("CORS_ORIGIN", "*"),
		RateLimit:  GetEnvInt("API_RATE_LIMIT", 600),

		HTTPPort:   GetEnvInt("HTTP_PORT", 8000),
		PublicHost: GetEnv("PUBLIC_HOST", "localhost"),

		StreamKey:      GetEnv("STREAM_KEY", "live"),
		RTMPHost:       GetEnv("RTMP_HOST", "localhost"),
		RTMPPort:       GetEnvInt("RTMP_PORT", 1935),
		IngestAPIURL:   GetEnv("INGEST_API_URL", ""),
		IngestAPIToken: GetEnv("INGEST_API_TOKEN", ""),

		HLSPath:           GetEnv("HLS_PATH", "./streams"),
		SegmentSeconds:    GetEnvInt("HLS_SEGMENT_SECONDS", 2),
		ListSize:          GetEnvInt("HLS_LIST_SIZE", 3),
		AudioBitrate:      GetEnv("AUDIO_BITRATE", "128k"),
		FFmpegPath:        GetEnv("FFMPEG_PATH", "ffmpeg"),
		FFmpegKillTimeout: GetEnvDuration("FFMPEG_KILL_TIMEOUT", 5*time.Second),

		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),
	}
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration parses the variable as a time.Duration ("5s", "1m"). A bare
// integer is taken as seconds. Invalid or negative values yield fallback.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return fallback
}
