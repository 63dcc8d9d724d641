package models

// StudioConfig holds everything the service needs to run. It is decoded
// from config.yaml merged with secrets.yaml, see cli/config.go.
type StudioConfig struct {
	Port    string `json:"port" yaml:"port"`
	IsDebug bool   `json:"is_debug" yaml:"is_debug"`

	PublicURL string `json:"public_url" yaml:"public_url"`

	LogSamplingTickMs  int `json:"log_sampling_tick_ms" yaml:"log_sampling_tick_ms"`
	LogSamplingAfterMs int `json:"log_sampling_after_ms" yaml:"log_sampling_after_ms"`

	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
	DataKey    string `json:"data_key" yaml:"data_key"`

	RedisAddr string `json:"redis_addr" yaml:"redis_addr"`
	RedisPass string `json:"redis_pass" yaml:"redis_pass"`
	RedisDB   int    `json:"redis_db" yaml:"redis_db"`

	JWTKey        string `json:"jwt_key" yaml:"jwt_key"`
	AdminKey      string `json:"admin_key" yaml:"admin_key"`
	AdminUser     string `json:"admin_user" yaml:"admin_user"`
	AdminPassword string `json:"admin_password" yaml:"admin_password"`

	GoogleClientID     string `json:"google_client_id" yaml:"google_client_id"`
	GoogleClientSecret string `json:"google_client_secret" yaml:"google_client_secret"`
	GoogleRedirectURL  string `json:"google_redirect_url" yaml:"google_redirect_url"`

	StripeSecretKey     string `json:"stripe_secret_key" yaml:"stripe_secret_key"`
	StripeWebhookSecret string `json:"stripe_webhook_secret" yaml:"stripe_webhook_secret"`
	// StripePrices maps our internal plan IDs to stripe price IDs, e.g.
	// starter_monthly: price_1ABC.
	StripePrices       map[string]string `json:"stripe_prices" yaml:"stripe_prices"`
	CheckoutSuccessURL string            `json:"checkout_success_url" yaml:"checkout_success_url"`
	CheckoutCancelURL  string            `json:"checkout_cancel_url" yaml:"checkout_cancel_url"`
	PortalReturnURL    string            `json:"portal_return_url" yaml:"portal_return_url"`

	PipelineURL         string `json:"pipeline_url" yaml:"pipeline_url"`
	PipelineKey         string `json:"pipeline_key" yaml:"pipeline_key"`
	PipelineCallbackKey string `json:"pipeline_callback_key" yaml:"pipeline_callback_key"`

	UploadDir   string `json:"upload_dir" yaml:"upload_dir"`
	MaxUploadMB int    `json:"max_upload_mb" yaml:"max_upload_mb"`
	FileSignKey string `json:"file_sign_key" yaml:"file_sign_key"`

	EmailGateway string `json:"email_gateway" yaml:"email_gateway"`
	EmailAPIKey  string `json:"email_api_key" yaml:"email_api_key"`
	EmailSender  string `json:"email_sender" yaml:"email_sender"`

	FirebaseCredentials string `json:"firebase_credentials" yaml:"firebase_credentials"`

	Cors []string `json:"cors" yaml:"cors"`

	OtelEnabled        bool    `json:"otel_enabled" yaml:"otel_enabled"`
	OtelEndpoint       string  `json:"otel_endpoint" yaml:"otel_endpoint"`
	OtelInsecure       bool    `json:"otel_insecure" yaml:"otel_insecure"`
	OtelServiceName    string  `json:"otel_service_name" yaml:"otel_service_name"`
	OtelServiceVersion string  `json:"otel_service_version" yaml:"otel_service_version"`
	OtelSampleRate     float64 `json:"otel_sample_rate" yaml:"otel_sample_rate"`
}

// MaxUploadBytes returns the configured selfie size limit, defaulting to 15MB.
func (c StudioConfig) MaxUploadBytes() int64 {
	mb := c.MaxUploadMB
	if mb <= 0 {
		mb = 15
	}
	return int64(mb) * 1024 * 1024
}
