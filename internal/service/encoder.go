package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/shopsearch/internal/domain"
)

// Encoder turns text and images into embedding vectors.
type Encoder interface {
	// EmbedText embeds text with the selected backend.
	EmbedText(ctx context.Context, text string, backend domain.Backend) ([]float32, error)
	// EmbedImage embeds a base64-encoded image with the joint backend.
	// caption may be empty.
	EmbedImage(ctx context.Context, base64Image, caption string) ([]float32, error)
}

// EncoderBackendConfig holds configuration for one remote encoder.
type EncoderBackendConfig struct {
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
}

// EncoderConfig holds configuration for the encoder gateway.
type EncoderConfig struct {
	Text  EncoderBackendConfig
	Joint EncoderBackendConfig
}

// EncoderGateway calls the two remote embedding services. Nothing is cached;
// every call goes to the network.
type EncoderGateway struct {
	text     *resty.Client
	joint    *resty.Client
	textDim  int
	jointDim int
}

// NewEncoderGateway creates a new encoder gateway.
func NewEncoderGateway(cfg *EncoderConfig) *EncoderGateway {
	return &EncoderGateway{
		text:     newEncoderClient(cfg.Text),
		joint:    newEncoderClient(cfg.Joint),
		textDim:  cfg.Text.Dimensions,
		jointDim: cfg.Joint.Dimensions,
	}
}

func newEncoderClient(cfg EncoderBackendConfig) *resty.Client {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return client
}

// Dimensions returns the vector size produced by backend.
func (g *EncoderGateway) Dimensions(backend domain.Backend) int {
	if backend == domain.BackendJoint {
		return g.jointDim
	}
	return g.textDim
}

type shortVectorRequest struct {
	Text string `json:"text"`
}

type shortVectorResponse struct {
	Vector json.RawMessage `json:"vector"`
}

type jointVectorRequest struct {
	Texts  []string `json:"texts"`
	Images []string `json:"images"`
}

type jointVectorResponse struct {
	TextVectors  json.RawMessage `json:"textVectors"`
	ImageVectors json.RawMessage `json:"imageVectors"`
}

// EmbedText embeds text with the short-vector or the joint backend.
func (g *EncoderGateway) EmbedText(ctx context.Context, text string, backend domain.Backend) ([]float32, error) {
	switch backend {
	case domain.BackendShort:
		return g.embedShort(ctx, text)
	case domain.BackendJoint:
		resp, err := g.callJoint(ctx, jointVectorRequest{Texts: []string{text}, Images: []string{}})
		if err != nil {
			return nil, err
		}
		vectors, err := parseVectorPayload(resp.TextVectors, batchVectorDepth)
		if err != nil {
			return nil, err
		}
		return firstVector(vectors, g.jointDim)
	default:
		return nil, fmt.Errorf("%w: unknown encoder backend %q", domain.ErrEncodingUnavailable, backend)
	}
}

// EmbedImage embeds an image, optionally paired with a caption, using the
// joint backend.
func (g *EncoderGateway) EmbedImage(ctx context.Context, base64Image, caption string) ([]float32, error) {
	texts := []string{}
	if caption != "" {
		texts = append(texts, caption)
	}
	resp, err := g.callJoint(ctx, jointVectorRequest{Texts: texts, Images: []string{base64Image}})
	if err != nil {
		return nil, err
	}
	vectors, err := parseVectorPayload(resp.ImageVectors, batchVectorDepth)
	if err != nil {
		return nil, err
	}
	return firstVector(vectors, g.jointDim)
}

func (g *EncoderGateway) embedShort(ctx context.Context, text string) ([]float32, error) {
	httpResp, err := g.text.R().
		SetContext(ctx).
		SetBody(shortVectorRequest{Text: text}).
		Post("/vectors")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call text encoder: %v", domain.ErrEncodingUnavailable, err)
	}
	if !httpResp.IsSuccess() {
		return nil, fmt.Errorf("%w: text encoder error: status %d", domain.ErrEncodingUnavailable, httpResp.StatusCode())
	}

	var resp shortVectorResponse
	if err := json.Unmarshal(httpResp.Body(), &resp); err != nil {
		return nil, fmt.Errorf("%w: unparsable text encoder response: %v", domain.ErrEncodingUnavailable, err)
	}
	vectors, err := parseVectorPayload(resp.Vector, singleVectorDepth)
	if err != nil {
		return nil, err
	}
	return firstVector(vectors, g.textDim)
}

func (g *EncoderGateway) callJoint(ctx context.Context, req jointVectorRequest) (*jointVectorResponse, error) {
	httpResp, err := g.joint.R().
		SetContext(ctx).
		SetBody(req).
		Post("/vectorize")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call joint encoder: %v", domain.ErrEncodingUnavailable, err)
	}
	if !httpResp.IsSuccess() {
		return nil, fmt.Errorf("%w: joint encoder error: status %d", domain.ErrEncodingUnavailable, httpResp.StatusCode())
	}

	var resp jointVectorResponse
	if err := json.Unmarshal(httpResp.Body(), &resp); err != nil {
		return nil, fmt.Errorf("%w: unparsable joint encoder response: %v", domain.ErrEncodingUnavailable, err)
	}
	return &resp, nil
}
