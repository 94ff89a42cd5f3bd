package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"
)

// VertexImagenConfig describes how to connect to Imagen.
type VertexImagenConfig struct {
	ProjectID          string
	Location           string
	Model              string
	ServiceAccountJSON string
}

// VertexImagenBackend edits images with Vertex AI Imagen.
type VertexImagenBackend struct {
	projectID          string
	location           string
	model              string
	serviceAccountJSON string
}

// NewVertexImagenBackend wires an Imagen edit backend.
func NewVertexImagenBackend(cfg VertexImagenConfig) *VertexImagenBackend {
	return &VertexImagenBackend{
		projectID:          strings.TrimSpace(cfg.ProjectID),
		location:           strings.TrimSpace(cfg.Location),
		model:              strings.TrimSpace(cfg.Model),
		serviceAccountJSON: strings.TrimSpace(cfg.ServiceAccountJSON),
	}
}

// EditOnce runs one Imagen edit. Imagen answers a safety-filtered request with
// an empty prediction list, which is reported as a moderation block.
func (v *VertexImagenBackend) EditOnce(ctx context.Context, image []byte, prompt string) ([]byte, error) {
	if v.projectID == "" || v.location == "" || v.model == "" {
		return nil, fmt.Errorf("imagen: missing project/location/model")
	}

	instance, err := structpb.NewValue(map[string]any{
		"prompt": prompt,
		"image": map[string]any{
			"bytesBase64Encoded": base64.StdEncoding.EncodeToString(image),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("imagen: build instance: %w", err)
	}

	params, err := structpb.NewValue(map[string]any{
		"sampleCount":      1,
		"editMode":         "inpainting-free-form",
		"includeRaiReason": true,
		"outputOptions":    map[string]any{"mimeType": "image/png"},
	})
	if err != nil {
		return nil, fmt.Errorf("imagen: build parameters: %w", err)
	}

	endpoint := fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", v.projectID, v.location, v.model)
	options := []option.ClientOption{option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", v.location))}
	if v.serviceAccountJSON != "" {
		options = append(options, option.WithCredentialsJSON([]byte(v.serviceAccountJSON)))
	}

	client, err := aiplatform.NewPredictionClient(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("imagen: prediction client: %w", err)
	}
	defer client.Close()

	resp, err := client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:   endpoint,
		Instances:  []*structpb.Value{instance},
		Parameters: params,
	})
	if err != nil {
		return nil, fmt.Errorf("imagen: predict: %w", err)
	}
	return decodePrediction(resp.GetPredictions())
}

func decodePrediction(predictions []*structpb.Value) ([]byte, error) {
	if len(predictions) == 0 {
		return nil, &EditError{Code: CodeModerationBlocked, Message: "imagen returned no predictions"}
	}

	fields := predictions[0].GetStructValue().GetFields()
	field := fields["bytesBase64Encoded"]
	if field == nil || field.GetStringValue() == "" {
		if reason := fields["raiFilteredReason"].GetStringValue(); reason != "" {
			return nil, &EditError{Code: CodeModerationBlocked, Message: reason}
		}
		return nil, fmt.Errorf("imagen: prediction missing bytes")
	}

	data, err := base64.StdEncoding.DecodeString(field.GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("imagen: decode result: %w", err)
	}
	return data, nil
}
