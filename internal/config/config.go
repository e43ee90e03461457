// Package config provides configuration types and loading for tradetape.
package config

// Config is the root configuration struct.
// Top-level groups: Store, Vector, Embedding, Blend, Tap, Telemetry, Log.
type Config struct {
	Store     StoreConfig     `json:"store"`
	Vector    VectorConfig    `json:"vector"`
	Embedding EmbeddingConfig `json:"embedding"`
	Blend     BlendConfig     `json:"blend"`
	Tap       TapConfig       `json:"tap"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Log       LogConfig       `json:"log"`
}

// ---------------------------------------------------------------------------
// Store – durable event journal
// ---------------------------------------------------------------------------

// StoreConfig selects and tunes the journal backend.
type StoreConfig struct {
	// Backend is "file" (flat append-file) or "sqlite" (embedded relational).
	Backend  string `json:"backend" envconfig:"BACKEND"`
	Path     string `json:"path" envconfig:"PATH"`
	PoolSize int    `json:"poolSize" envconfig:"POOL_SIZE"`
}

// ---------------------------------------------------------------------------
// Vector – similarity index
// ---------------------------------------------------------------------------

// VectorConfig selects and tunes the vector index backend.
type VectorConfig struct {
	// Backend is "disabled", "qdrant", "redis" or "chromem".
	Backend    string `json:"backend" envconfig:"BACKEND"`
	URL        string `json:"url" envconfig:"URL"`
	Addr       string `json:"addr" envconfig:"ADDR"`
	Password   string `json:"password,omitempty" envconfig:"PASSWORD"`
	DB         int    `json:"db" envconfig:"DB"`
	Path       string `json:"path" envconfig:"PATH"`
	Collection string `json:"collection" envconfig:"COLLECTION"`
	Dimension  int    `json:"dimension" envconfig:"DIMENSION"`
}

// ---------------------------------------------------------------------------
// Embedding – payload → vector
// ---------------------------------------------------------------------------

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	// Provider is "hash" (deterministic, no network) or "openai".
	Provider  string `json:"provider" envconfig:"PROVIDER"`
	Model     string `json:"model" envconfig:"MODEL"`
	APIBase   string `json:"apiBase,omitempty" envconfig:"API_BASE"`
	APIKey    string `json:"apiKey,omitempty" envconfig:"API_KEY"`
	Dimension int    `json:"dimension" envconfig:"DIMENSION"`
}

// ---------------------------------------------------------------------------
// Blend – retrieval-augmented prior mixing
// ---------------------------------------------------------------------------

// BlendConfig tunes the prior blending.
type BlendConfig struct {
	Weight    float64 `json:"weight" envconfig:"WEIGHT"`
	Neighbors int     `json:"neighbors" envconfig:"NEIGHBORS"`
}

// ---------------------------------------------------------------------------
// Tap – Kafka mirror of appended events
// ---------------------------------------------------------------------------

// TapConfig configures the optional Kafka event tap.
type TapConfig struct {
	Enabled bool     `json:"enabled" envconfig:"ENABLED"`
	Brokers []string `json:"brokers" envconfig:"BROKERS"`
	Topic   string   `json:"topic" envconfig:"TOPIC"`
}

// ---------------------------------------------------------------------------
// Telemetry – OTLP metrics export
// ---------------------------------------------------------------------------

// TelemetryConfig configures the optional OpenTelemetry exporter.
type TelemetryConfig struct {
	Endpoint    string `json:"endpoint,omitempty" envconfig:"ENDPOINT"`
	ServiceName string `json:"serviceName" envconfig:"SERVICE_NAME"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `json:"level" envconfig:"LEVEL"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:  "file",
			Path:     "~/.tradetape/events.jsonl",
			PoolSize: 4,
		},
		Vector: VectorConfig{
			Backend:    "disabled",
			URL:        "http://localhost:6333",
			Addr:       "localhost:6379",
			Path:       "~/.tradetape/vectors",
			Collection: "tradetape_events",
			Dimension:  384,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "text-embedding-3-small",
			Dimension: 384,
		},
		Blend: BlendConfig{
			Weight:    0.25,
			Neighbors: 10,
		},
		Tap: TapConfig{
			Enabled: false,
			Topic:   "tradetape.events",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "tradetape",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
