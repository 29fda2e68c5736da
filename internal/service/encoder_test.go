package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/timmy/shopsearch/internal/domain"
)

func newTestGateway(t *testing.T, text, joint http.HandlerFunc) *EncoderGateway {
	t.Helper()
	textSrv := httptest.NewServer(text)
	t.Cleanup(textSrv.Close)
	jointSrv := httptest.NewServer(joint)
	t.Cleanup(jointSrv.Close)

	return NewEncoderGateway(&EncoderConfig{
		Text:  EncoderBackendConfig{BaseURL: textSrv.URL, Dimensions: 3, Timeout: 2 * time.Second},
		Joint: EncoderBackendConfig{BaseURL: jointSrv.URL, Dimensions: 2, Timeout: 2 * time.Second},
	})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestEncoderGatewayEmbedTextShort(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    []float32
		wantErr bool
	}{
		{name: "string wrapped vector", status: http.StatusOK, body: `{"vector": "[0.1, 0.2, 0.3]"}`, want: []float32{0.1, 0.2, 0.3}},
		{name: "bare vector", status: http.StatusOK, body: `{"vector": [1, 2, 3]}`, want: []float32{1, 2, 3}},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error": "boom"}`, wantErr: true},
		{name: "unparsable body", status: http.StatusOK, body: `not json`, wantErr: true},
		{name: "wrong nesting", status: http.StatusOK, body: `{"vector": "[[0.1, 0.2, 0.3]]"}`, wantErr: true},
		{name: "wrong dimensions", status: http.StatusOK, body: `{"vector": "[0.1, 0.2]"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotText string
			gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/vectors" || r.Method != http.MethodPost {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				var req shortVectorRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				gotText = req.Text
				writeJSON(w, tt.status, tt.body)
			}, func(w http.ResponseWriter, r *http.Request) {
				t.Error("joint backend must not be called")
			})

			got, err := gw.EmbedText(context.Background(), "red shirt", domain.BackendShort)
			if gotText != "red shirt" {
				t.Errorf("request text = %q", gotText)
			}
			if tt.wantErr {
				if !errors.Is(err, domain.ErrEncodingUnavailable) {
					t.Fatalf("EmbedText() error = %v, want ErrEncodingUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("EmbedText() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("EmbedText() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncoderGatewayJoint(t *testing.T) {
	var got jointVectorRequest
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("short backend must not be called")
	}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectorize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		got = jointVectorRequest{}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, `{"textVectors": "[[1, 0]]", "imageVectors": "[[0, 1]]"}`)
	})
	ctx := context.Background()

	t.Run("text", func(t *testing.T) {
		vec, err := gw.EmbedText(ctx, "blue jeans", domain.BackendJoint)
		if err != nil {
			t.Fatalf("EmbedText() error = %v", err)
		}
		if !reflect.DeepEqual(vec, []float32{1, 0}) {
			t.Errorf("EmbedText() = %v", vec)
		}
		if !reflect.DeepEqual(got.Texts, []string{"blue jeans"}) || len(got.Images) != 0 {
			t.Errorf("request = %+v", got)
		}
	})

	t.Run("image with caption", func(t *testing.T) {
		vec, err := gw.EmbedImage(ctx, "aGVsbG8=", "a photo of a shoe")
		if err != nil {
			t.Fatalf("EmbedImage() error = %v", err)
		}
		if !reflect.DeepEqual(vec, []float32{0, 1}) {
			t.Errorf("EmbedImage() = %v", vec)
		}
		if !reflect.DeepEqual(got.Images, []string{"aGVsbG8="}) || !reflect.DeepEqual(got.Texts, []string{"a photo of a shoe"}) {
			t.Errorf("request = %+v", got)
		}
	})

	t.Run("image without caption", func(t *testing.T) {
		if _, err := gw.EmbedImage(ctx, "aGVsbG8=", ""); err != nil {
			t.Fatalf("EmbedImage() error = %v", err)
		}
		if len(got.Texts) != 0 {
			t.Errorf("texts = %v, want none", got.Texts)
		}
	})
}

func TestEncoderGatewayUnknownBackend(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected call")
	}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected call")
	})
	if _, err := gw.EmbedText(context.Background(), "x", domain.Backend("other")); !errors.Is(err, domain.ErrEncodingUnavailable) {
		t.Fatalf("EmbedText() error = %v, want ErrEncodingUnavailable", err)
	}
}

func TestEncoderGatewayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gw := NewEncoderGateway(&EncoderConfig{
		Text:  EncoderBackendConfig{BaseURL: url, Dimensions: 3, Timeout: time.Second},
		Joint: EncoderBackendConfig{BaseURL: url, Dimensions: 2, Timeout: time.Second},
	})
	if _, err := gw.EmbedText(context.Background(), "x", domain.BackendShort); !errors.Is(err, domain.ErrEncodingUnavailable) {
		t.Fatalf("EmbedText() error = %v, want ErrEncodingUnavailable", err)
	}
	if _, err := gw.EmbedImage(context.Background(), "aGVsbG8=", ""); !errors.Is(err, domain.ErrEncodingUnavailable) {
		t.Fatalf("EmbedImage() error = %v, want ErrEncodingUnavailable", err)
	}
}
