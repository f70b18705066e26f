package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/inspector/pkg/core"
)

func TestAIClient_ExtractHTML(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/extract/html-ai", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"data":{"total":"42"},"fieldsWithValues":1,"fieldsExtracted":2}`))
	}))
	defer srv.Close()

	c := NewAIClient(AIClientConfig{Endpoint: srv.URL + "/", APIKey: "key", Rate: 100})
	tmpl := &core.Template{Name: "invoice"}
	rec, err := c.ExtractAI(context.Background(), AIInputHTML, "<h1>Invoice</h1><p>Total 42</p>", tmpl)
	require.NoError(t, err)

	assert.Equal(t, core.Record{"total": "42"}, rec)
	assert.Equal(t, "<h1>Invoice</h1><p>Total 42</p>", got["html"])
	assert.Contains(t, got["markdown"], "# Invoice")
	assert.Equal(t, "invoice", got["template"].(map[string]any)["name"])
}

func TestAIClient_Payloads(t *testing.T) {
	paths := make(map[string]map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		paths[r.URL.Path] = body
		_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
	}))
	defer srv.Close()

	c := NewAIClient(AIClientConfig{Endpoint: srv.URL, Rate: 100, Burst: 2})
	_, err := c.ExtractAI(context.Background(), AIInputEmail, "Subject: hi", nil)
	require.NoError(t, err)
	_, err = c.ExtractAI(context.Background(), AIInputPDF, "page text", nil)
	require.NoError(t, err)

	assert.Equal(t, "Subject: hi", paths["/api/extract/email-ai"]["email_content"])
	assert.Equal(t, "page text", paths["/api/extract/pdf-ai"]["text"])

	_, err = c.ExtractAI(context.Background(), AIInput("docx"), "x", nil)
	assert.ErrorContains(t, err, "unknown ai input")
}

func TestAIClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "http error", status: http.StatusBadGateway, body: "upstream down", want: "HTTP 502: upstream down"},
		{name: "service error", status: http.StatusOK, body: `{"success":false,"error":"no fields"}`, want: "no fields"},
		{name: "bad json", status: http.StatusOK, body: `{`, want: "failed to decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewAIClient(AIClientConfig{Endpoint: srv.URL, Rate: 100})
			_, err := c.ExtractAI(context.Background(), AIInputPDF, "text", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAIClient_CancelledContext(t *testing.T) {
	c := NewAIClient(AIClientConfig{Endpoint: "http://127.0.0.1:1", Rate: 0.001, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ExtractAI(ctx, AIInputPDF, "text", nil)
	assert.ErrorContains(t, err, "rate limiter")
}
