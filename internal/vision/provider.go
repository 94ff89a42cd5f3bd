package vision

import (
	"archRenew/internal/config"
	"archRenew/internal/llm"
)

// NewProvider builds the chat client and edit backend for the configured AI provider.
func NewProvider(ai config.AIConfig) (llm.Client, EditBackend) {
	if ai.Provider == config.ProviderGoogle {
		chat := llm.NewGeminiClient(llm.GeminiConfig{
			APIKey: ai.Google.GeminiAPIKey,
			Model:  ai.Google.GeminiModel,
		})
		backend := NewVertexImagenBackend(VertexImagenConfig{
			ProjectID:          ai.Google.ProjectID,
			Location:           ai.Google.Location,
			Model:              ai.Google.ImagenModel,
			ServiceAccountJSON: ai.Google.ServiceAccountJSON,
		})
		return chat, backend
	}

	auth := llm.NewAzureAuth(ai.Azure.APIKey, ai.Azure.TenantID, ai.Azure.ClientID, ai.Azure.ClientSecret)
	chat := llm.NewAzureClient(llm.AzureConfig{
		Endpoint:   ai.Azure.Endpoint,
		Deployment: ai.Azure.ChatDeployment,
		APIVersion: ai.Azure.APIVersion,
		Auth:       auth,
	})
	backend := NewAzureEditBackend(AzureEditConfig{
		Endpoint:   ai.Azure.Endpoint,
		Deployment: ai.Azure.ImageDeployment,
		APIVersion: ai.Azure.APIVersion,
		Auth:       auth,
	})
	return chat, backend
}
