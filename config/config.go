package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Port        string
	LogLevel    string

	NatsURL     string
	NatsSubject string

	AuthHeader string
	AuthSecret string

	MaxWorkers     int
	JobQueueSize   int
	Ratelimit      int
	RatelimitBurst int

	// Strategy is "native" or "docker".
	Strategy           string
	CodeRoot           string
	BannedWordsPath    string
	MaxCodeLength      int
	RunTimeout         time.Duration
	CompileTimeout     time.Duration
	InputMode          string
	StopOnFirstFailure bool

	JavacPath            string
	JavaPath             string
	JVMMaxHeap           string
	SecurityManagerPath  string
	SecurityManagerClass string

	DockerImage        string
	DockerMemoryBytes  int64
	DockerNanoCPUs     int64
	DockerPidsLimit    int64
	SeccompProfilePath string
	ContainerLogPath   string

	BetterStackUploadURL   string
	BetterStackSourceToken string
}

func LoadConfig() Config {
	err := godotenv.Load(".env")
	if err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	return Config{
		Environment: getEnv("ENVIRONMENT", "production"),
		Port:        getEnv("PORT", "8090"),
		LogLevel:    getEnv("LOGLEVEL", "info"),

		NatsURL:     getEnv("NATSURL", ""),
		NatsSubject: getEnv("NATSSUBJECT", "sandbox.execute.request"),

		AuthHeader: getEnv("AUTHHEADER", "auth"),
		AuthSecret: getEnv("AUTHSECRET", ""),

		MaxWorkers:     getEnvInt("MAXWORKERS", 4),
		JobQueueSize:   getEnvInt("JOBQUEUESIZE", 64),
		Ratelimit:      getEnvInt("RATELIMIT", 10),
		RatelimitBurst: getEnvInt("RATELIMITBURST", 20),

		Strategy:           strings.ToLower(getEnv("STRATEGY", "docker")),
		CodeRoot:           getEnv("CODEROOT", "tmp_code"),
		BannedWordsPath:    getEnv("BANNEDWORDSPATH", "deploy/banned_words.txt"),
		MaxCodeLength:      getEnvInt("MAXCODELENGTH", 10000),
		RunTimeout:         getEnvDuration("RUNTIMEOUT", 10*time.Second),
		CompileTimeout:     getEnvDuration("COMPILETIMEOUT", 30*time.Second),
		InputMode:          getEnv("INPUTMODE", "args"),
		StopOnFirstFailure: getEnvBool("STOPONFIRSTFAILURE", false),

		JavacPath:            getEnv("JAVACPATH", "javac"),
		JavaPath:             getEnv("JAVAPATH", "java"),
		JVMMaxHeap:           getEnv("JVMMAXHEAP", "156m"),
		SecurityManagerPath:  getEnv("SECURITYMANAGERPATH", ""),
		SecurityManagerClass: getEnv("SECURITYMANAGERCLASS", ""),

		DockerImage:        getEnv("DOCKERIMAGE", "openjdk:8-alpine"),
		DockerMemoryBytes:  getEnvInt64("DOCKERMEMORYBYTES", 100*1000*1000),
		DockerNanoCPUs:     getEnvInt64("DOCKERNANOCPUS", 1_000_000_000),
		DockerPidsLimit:    getEnvInt64("DOCKERPIDSLIMIT", 64),
		SeccompProfilePath: getEnv("SECCOMPPROFILEPATH", "deploy/seccomp.json"),
		ContainerLogPath:   getEnv("CONTAINERLOGPATH", "logs/container.log"),

		BetterStackUploadURL:   getEnv("BETTERSTACKUPLOADURL", ""),
		BetterStackSourceToken: getEnv("BETTERSTACKSOURCETOKEN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid integer for %s: %q", key, value)
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid integer for %s: %q", key, value)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: invalid boolean for %s: %q", key, value)
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("10s") or plain milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
		log.Printf("Warning: invalid duration for %s: %q", key, value)
	}
	return defaultValue
}
