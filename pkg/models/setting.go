package models

// Setting keys consumed by the engine. Values live in the system_config table
// and are owned by an administrative collaborator; the engine only reads them.
const (
	SettingOCRAPIURL       = "OCR_API_URL"
	SettingOCRAPIKey       = "OCR_API_KEY"
	SettingOCRModelVersion = "OCR_MODEL_VERSION"

	SettingLLMProvider      = "LLM_PROVIDER" // "openai" (default) or "anthropic"
	SettingLLMAPIURL        = "LLM_API_URL"
	SettingLLMAPIKey        = "LLM_API_KEY"
	SettingLLMModel         = "LLM_MODEL"
	SettingLLMTemperature   = "LLM_TEMPERATURE"
	SettingLLMMaxTokens     = "LLM_MAX_TOKENS"
	SettingLLMRewritePrompt = "LLM_REWRITE_PROMPT"
)

// Setting is a single named configuration value.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
