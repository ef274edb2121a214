package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"training-pipeline-service/internal/core/domain"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Worker     WorkerConfig
	Preflight  PreflightConfig
	Trainer    TrainerConfig
	Evaluation EvaluationConfig
	Inference  InferenceConfig
	Quota      QuotaConfig
	Kubernetes KubernetesConfig
	Logger     LoggerConfig

	// SupportedModels is the approved base-model registry keyed by model id.
	SupportedModels map[string]domain.BaseModel
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type WorkerConfig struct {
	Enabled      bool
	Count        int
	PollInterval time.Duration
	BatchSize    int
}

type PreflightConfig struct {
	MaxGPUVRAMGB     float64
	VRAMSafetyFactor float64
}

type TrainerConfig struct {
	// Backend selects the execution backend: simulator, command, or kubejob.
	Backend         string
	CommandTemplate string
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	ArtifactRoot    string
}

type EvaluationConfig struct {
	ExactMatchThreshold    float64
	SemanticThreshold      float64
	UnsupportedThreshold   float64
	RefusalRecallThreshold float64
	RegressionTolerance    float64
	MaxFailures            int
}

type InferenceConfig struct {
	Backend          string
	OllamaBaseURL    string
	OllamaChatModel  string
	Timeout          time.Duration
	RequireGrounding bool
	RetrievalTopK    int
}

type QuotaConfig struct {
	Enabled bool
	URL     string
	Timeout time.Duration
}

type KubernetesConfig struct {
	Enabled        bool
	InCluster      bool
	KubeConfigPath string
	Namespace      string
	TrainerImage   string
}

type LoggerConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "pipeline")
	v.SetDefault("DB_PASSWORD", "pipeline")
	v.SetDefault("DB_NAME", "pipeline")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")

	v.SetDefault("WORKER_ENABLED", true)
	v.SetDefault("WORKER_COUNT", 2)
	v.SetDefault("WORKER_POLL_INTERVAL", "3s")
	v.SetDefault("WORKER_BATCH_SIZE", 3)

	v.SetDefault("MAX_GPU_VRAM_GB", 24.0)
	v.SetDefault("VRAM_SAFETY_FACTOR", 0.85)

	v.SetDefault("TRAINER_BACKEND", "simulator")
	v.SetDefault("TRAINER_COMMAND_TEMPLATE", "")
	v.SetDefault("TRAINER_TIMEOUT", "2h")
	v.SetDefault("TRAINER_MAX_RETRIES", 2)
	v.SetDefault("TRAINER_RETRY_BACKOFF", "5s")
	v.SetDefault("TRAINER_ARTIFACT_ROOT", "/var/lib/pipeline/runs")

	v.SetDefault("EVAL_EXACT_MATCH_THRESHOLD", 0.6)
	v.SetDefault("EVAL_SEMANTIC_THRESHOLD", 0.72)
	v.SetDefault("EVAL_UNSUPPORTED_THRESHOLD", 0.12)
	v.SetDefault("EVAL_REFUSAL_RECALL_THRESHOLD", 0.8)
	v.SetDefault("EVAL_REGRESSION_TOLERANCE", 0.05)
	v.SetDefault("EVAL_MAX_FAILURES", 20)

	v.SetDefault("INFERENCE_BACKEND", "ollama")
	v.SetDefault("OLLAMA_BASE_URL", "http://localhost:11434")
	v.SetDefault("OLLAMA_CHAT_MODEL", "llama3.1:8b")
	v.SetDefault("INFERENCE_TIMEOUT", "45s")
	v.SetDefault("REQUIRE_GROUNDING", true)
	v.SetDefault("RETRIEVAL_TOP_K", 3)

	v.SetDefault("QUOTA_ENABLED", false)
	v.SetDefault("QUOTA_URL", "http://localhost:8086")
	v.SetDefault("QUOTA_TIMEOUT", "5s")

	v.SetDefault("K8S_ENABLED", false)
	v.SetDefault("K8S_IN_CLUSTER", false)
	v.SetDefault("K8S_KUBECONFIG", "")
	v.SetDefault("K8S_NAMESPACE", "training")
	v.SetDefault("K8S_TRAINER_IMAGE", "")

	v.SetDefault("LOGGER_LEVEL", "info")
	v.SetDefault("LOGGER_FORMAT", "json")

	// Env
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Worker: WorkerConfig{
			Enabled:      v.GetBool("WORKER_ENABLED"),
			Count:        v.GetInt("WORKER_COUNT"),
			PollInterval: v.GetDuration("WORKER_POLL_INTERVAL"),
			BatchSize:    v.GetInt("WORKER_BATCH_SIZE"),
		},
		Preflight: PreflightConfig{
			MaxGPUVRAMGB:     v.GetFloat64("MAX_GPU_VRAM_GB"),
			VRAMSafetyFactor: v.GetFloat64("VRAM_SAFETY_FACTOR"),
		},
		Trainer: TrainerConfig{
			Backend:         v.GetString("TRAINER_BACKEND"),
			CommandTemplate: v.GetString("TRAINER_COMMAND_TEMPLATE"),
			Timeout:         v.GetDuration("TRAINER_TIMEOUT"),
			MaxRetries:      v.GetInt("TRAINER_MAX_RETRIES"),
			RetryBackoff:    v.GetDuration("TRAINER_RETRY_BACKOFF"),
			ArtifactRoot:    v.GetString("TRAINER_ARTIFACT_ROOT"),
		},
		Evaluation: EvaluationConfig{
			ExactMatchThreshold:    v.GetFloat64("EVAL_EXACT_MATCH_THRESHOLD"),
			SemanticThreshold:      v.GetFloat64("EVAL_SEMANTIC_THRESHOLD"),
			UnsupportedThreshold:   v.GetFloat64("EVAL_UNSUPPORTED_THRESHOLD"),
			RefusalRecallThreshold: v.GetFloat64("EVAL_REFUSAL_RECALL_THRESHOLD"),
			RegressionTolerance:    v.GetFloat64("EVAL_REGRESSION_TOLERANCE"),
			MaxFailures:            v.GetInt("EVAL_MAX_FAILURES"),
		},
		Inference: InferenceConfig{
			Backend:          v.GetString("INFERENCE_BACKEND"),
			OllamaBaseURL:    v.GetString("OLLAMA_BASE_URL"),
			OllamaChatModel:  v.GetString("OLLAMA_CHAT_MODEL"),
			Timeout:          v.GetDuration("INFERENCE_TIMEOUT"),
			RequireGrounding: v.GetBool("REQUIRE_GROUNDING"),
			RetrievalTopK:    v.GetInt("RETRIEVAL_TOP_K"),
		},
		Quota: QuotaConfig{
			Enabled: v.GetBool("QUOTA_ENABLED"),
			URL:     v.GetString("QUOTA_URL"),
			Timeout: v.GetDuration("QUOTA_TIMEOUT"),
		},
		Kubernetes: KubernetesConfig{
			Enabled:        v.GetBool("K8S_ENABLED"),
			InCluster:      v.GetBool("K8S_IN_CLUSTER"),
			KubeConfigPath: v.GetString("K8S_KUBECONFIG"),
			Namespace:      v.GetString("K8S_NAMESPACE"),
			TrainerImage:   v.GetString("K8S_TRAINER_IMAGE"),
		},
		Logger: LoggerConfig{
			Level:  v.GetString("LOGGER_LEVEL"),
			Format: v.GetString("LOGGER_FORMAT"),
		},
		SupportedModels: defaultSupportedModels(),
	}

	if raw := v.GetString("SUPPORTED_MODELS_JSON"); raw != "" {
		models := map[string]domain.BaseModel{}
		if err := json.Unmarshal([]byte(raw), &models); err != nil {
			return nil, fmt.Errorf("parse SUPPORTED_MODELS_JSON: %w", err)
		}
		cfg.SupportedModels = models
	}

	return cfg, nil
}

// defaultSupportedModels is the built-in approved registry. Operators extend
// it via SUPPORTED_MODELS_JSON when new bases are cleared for use.
func defaultSupportedModels() map[string]domain.BaseModel {
	return map[string]domain.BaseModel{
		"meta-llama/Llama-3.1-8B-Instruct":   {SizeB: 8, Approved: true},
		"mistralai/Mistral-7B-Instruct-v0.3": {SizeB: 7, Approved: true},
		"Qwen/Qwen2.5-7B-Instruct":           {SizeB: 7, Approved: true},
		"Qwen/Qwen2.5-14B-Instruct":          {SizeB: 14, Approved: false},
	}
}
