package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted in AI_PROVIDER.
const (
	ProviderAzure  = "azure"
	ProviderGoogle = "google"
)

// Config holds runtime configuration values.
type Config struct {
	AppEnv      string
	Port        string
	LogLevel    string
	DatabaseURL string
	StaticDir   string
	AI          AIConfig
	Pipeline    PipelineConfig
	Media       MediaConfig
	Client      ClientConfig
	HTTP        HTTPConfig
}

// AIConfig selects the remote AI provider and carries its credentials.
type AIConfig struct {
	Provider string
	Azure    AzureConfig
	Google   GoogleConfig
}

// AzureConfig describes an Azure OpenAI resource.
type AzureConfig struct {
	Endpoint        string
	APIKey          string
	ChatDeployment  string
	ImageDeployment string
	APIVersion      string
	TenantID        string
	ClientID        string
	ClientSecret    string
}

// GoogleConfig describes Gemini and Vertex AI Imagen access.
type GoogleConfig struct {
	GeminiAPIKey       string
	GeminiModel        string
	ProjectID          string
	Location           string
	ImagenModel        string
	ServiceAccountJSON string
}

// PipelineConfig tunes the restoration pipeline.
type PipelineConfig struct {
	VisionTimeout     time.Duration
	PlanTimeout       time.Duration
	EditTimeout       time.Duration
	EditRetryDelay    time.Duration
	FingerprintPrefix int
	AnalysisCacheSize int
}

// MediaConfig describes S3/media related configuration.
type MediaConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	PublicURL       string
	KeyPrefix       string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	LocalDir        string
}

// ClientConfig holds third-party keys consumed only by the dashboard.
type ClientConfig struct {
	GeoapifyAPIKey string
	MapillaryToken string
}

// HTTPConfig holds server timeouts.
type HTTPConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FromEnv loads .env files when present, then reads configuration from
// environment variables and applies defaults.
func FromEnv() Config {
	_ = godotenv.Load(".env", ".env.local")

	cfg := Config{
		AppEnv:      getenv("APP_ENV", "development"),
		Port:        getenv("APP_PORT", "8000"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StaticDir:   os.Getenv("STATIC_DIR"),
		AI: AIConfig{
			Provider: strings.ToLower(getenv("AI_PROVIDER", ProviderAzure)),
			Azure: AzureConfig{
				Endpoint:        strings.TrimSpace(os.Getenv("AZURE_OPENAI_ENDPOINT")),
				APIKey:          strings.TrimSpace(os.Getenv("AZURE_OPENAI_API_KEY")),
				ChatDeployment:  getenv("AZURE_OPENAI_DEPLOYMENT_NAME", "gpt-4.1"),
				ImageDeployment: getenv("AZURE_OPENAI_IMAGE_DEPLOYMENT_NAME", "gpt-image-1"),
				APIVersion:      getenv("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
				TenantID:        os.Getenv("AZURE_TENANT_ID"),
				ClientID:        os.Getenv("AZURE_CLIENT_ID"),
				ClientSecret:    os.Getenv("AZURE_CLIENT_SECRET"),
			},
			Google: GoogleConfig{
				GeminiAPIKey:       strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
				GeminiModel:        getenv("GEMINI_MODEL", "gemini-2.5-flash"),
				ProjectID:          strings.TrimSpace(os.Getenv("VERTEX_PROJECT_ID")),
				Location:           getenv("VERTEX_LOCATION", "us-central1"),
				ImagenModel:        getenv("VERTEX_IMAGEN_MODEL", "imagen-3.0-capability-001"),
				ServiceAccountJSON: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"),
			},
		},
		Pipeline: PipelineConfig{
			VisionTimeout:     getenvSeconds("VISION_TIMEOUT_SECONDS", 60),
			PlanTimeout:       getenvSeconds("PLAN_TIMEOUT_SECONDS", 60),
			EditTimeout:       getenvSeconds("EDIT_TIMEOUT_SECONDS", 90),
			EditRetryDelay:    time.Duration(getenvInt("EDIT_RETRY_DELAY_MS", 2000)) * time.Millisecond,
			FingerprintPrefix: getenvInt("ANALYSIS_FINGERPRINT_BYTES", 100),
			AnalysisCacheSize: getenvInt("ANALYSIS_CACHE_SIZE", 0),
		},
		Media: MediaConfig{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          os.Getenv("S3_REGION"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			PublicURL:       os.Getenv("S3_PUBLIC_URL"),
			KeyPrefix:       strings.Trim(os.Getenv("S3_KEY_PREFIX"), "/"),
			ForcePathStyle:  getenvBool("S3_FORCE_PATH_STYLE", false),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			LocalDir:        os.Getenv("MEDIA_LOCAL_DIR"),
		},
		Client: ClientConfig{
			GeoapifyAPIKey: os.Getenv("GEOAPIFY_API_KEY"),
			MapillaryToken: os.Getenv("MAPILLARY_TOKEN"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:  getenvSeconds("HTTP_READ_TIMEOUT_SECONDS", 30),
			WriteTimeout: getenvSeconds("HTTP_WRITE_TIMEOUT_SECONDS", 0),
			IdleTimeout:  getenvSeconds("HTTP_IDLE_TIMEOUT_SECONDS", 60),
		},
	}

	if cfg.Port == "" {
		cfg.Port = "8000"
	}

	// A restoration response must never outlive the connection.
	if floor := cfg.Pipeline.WorstCase() + writeTimeoutMargin; cfg.HTTP.WriteTimeout < floor {
		cfg.HTTP.WriteTimeout = floor
	}

	return cfg
}

const writeTimeoutMargin = 30 * time.Second

// WorstCase is the longest a single restoration can spend in remote calls:
// analysis, planning, an edit, the moderation retry delay and a second edit.
func (p PipelineConfig) WorstCase() time.Duration {
	return p.VisionTimeout + p.PlanTimeout + 2*p.EditTimeout + p.EditRetryDelay
}

// UsesEntraID reports whether Azure requests should authenticate with a
// client-credentials token instead of the static api-key header.
func (a AzureConfig) UsesEntraID() bool {
	return a.TenantID != "" && a.ClientID != "" && a.ClientSecret != ""
}

// MissingCredentials lists the environment keys of the core credentials that
// are absent for the selected provider. An empty result means the pipeline
// can reach its remote services.
func (a AIConfig) MissingCredentials() []string {
	var missing []string
	switch a.Provider {
	case ProviderGoogle:
		if a.Google.GeminiAPIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
		if a.Google.ProjectID == "" {
			missing = append(missing, "VERTEX_PROJECT_ID")
		}
	default:
		if a.Azure.APIKey == "" && !a.Azure.UsesEntraID() {
			missing = append(missing, "AZURE_OPENAI_API_KEY")
		}
		if a.Azure.Endpoint == "" {
			missing = append(missing, "AZURE_OPENAI_ENDPOINT")
		}
	}
	return missing
}

// RequiredKeys names every key the selected provider needs, for help messages.
func (a AIConfig) RequiredKeys() []string {
	if a.Provider == ProviderGoogle {
		return []string{"GEMINI_API_KEY", "VERTEX_PROJECT_ID", "VERTEX_LOCATION"}
	}
	return []string{"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT_NAME"}
}

// Mask hides most of a secret for start-up logging.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 12 {
		return secret[:min(4, len(secret))] + "****"
	}
	return secret[:8] + "..." + secret[len(secret)-4:]
}

func getenv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	return fallback
}

func getenvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}

	return parsed
}

func getenvInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getenvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getenvInt(key, fallback)) * time.Second
}
