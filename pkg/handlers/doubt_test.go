package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdoubt/manim-tutor-api/pkg/config"
	"github.com/askdoubt/manim-tutor-api/pkg/pipeline"
	"github.com/askdoubt/manim-tutor-api/pkg/renderer"
)

type stubPipeline struct {
	result *pipeline.Result
	err    error
	calls  int
}

func (s *stubPipeline) Run(_ context.Context, _ string, _ []byte, _ string) (*pipeline.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubRenderer struct {
	result *renderer.RenderResult
	err    error
}

func (s *stubRenderer) Render(_ context.Context, _, _ string) (*renderer.RenderResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// askDoubtRequest builds the multipart form the endpoint accepts. A nil image
// omits the file part entirely.
func askDoubtRequest(t *testing.T, question, imageType string, image []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if image != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="image"; filename="problem.png"`)
		header.Set("Content-Type", imageType)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	if question != "" {
		require.NoError(t, writer.WriteField("question", question))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/ask-doubt", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serveAskDoubt(h *Handlers, req *http.Request) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/ask-doubt", h.AskDoubt)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAskDoubtRequiresImage(t *testing.T) {
	h := &Handlers{Config: &config.Config{MaxImageSize: 1 << 20}}

	w := serveAskDoubt(h, askDoubtRequest(t, "What is acceleration?", "", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeEnvelope(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "Image file is required", resp.Message)
}

func TestAskDoubtRejectsNonImage(t *testing.T) {
	h := &Handlers{Config: &config.Config{MaxImageSize: 1 << 20}}

	w := serveAskDoubt(h, askDoubtRequest(t, "What is acceleration?", "text/plain", []byte("not an image")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "File must be an image", decodeEnvelope(t, w).Message)
}

func TestAskDoubtRejectsOversizedImage(t *testing.T) {
	h := &Handlers{Config: &config.Config{MaxImageSize: 1 << 20}}
	oversized := bytes.Repeat([]byte("a"), 1<<20+1)

	w := serveAskDoubt(h, askDoubtRequest(t, "What is acceleration?", "image/png", oversized))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Image size exceeds maximum allowed (1MB)", decodeEnvelope(t, w).Message)
}

func TestAskDoubtRejectsShortQuestion(t *testing.T) {
	h := &Handlers{Config: &config.Config{MaxImageSize: 1 << 20}}

	w := serveAskDoubt(h, askDoubtRequest(t, "hi", "image/png", []byte("png-bytes")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Question must be at least 3 characters", decodeEnvelope(t, w).Message)
}

func TestAskDoubtPipelineFailures(t *testing.T) {
	tests := []struct {
		name        string
		pipelineErr error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "no code found",
			pipelineErr: pipeline.ErrNoCodeFound,
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "The model did not return a usable script. Please try again.",
		},
		{
			name:        "syntax failure",
			pipelineErr: pipeline.ErrSyntaxInvalid,
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Generated script failed validation. Please try rephrasing your question.",
		},
		{
			name:        "structure failure",
			pipelineErr: pipeline.ErrStructureInvalid,
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Generated script was incomplete. Please try again.",
		},
		{
			name:        "safety rejection",
			pipelineErr: pipeline.ErrUnsafeScript,
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "Generated script was rejected by safety checks.",
		},
		{
			name:        "unexpected failure",
			pipelineErr: errors.New("network down"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Failed to generate solution",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipe := &stubPipeline{err: tt.pipelineErr}
			h := &Handlers{
				Config:   &config.Config{MaxImageSize: 1 << 20},
				Pipeline: pipe,
			}

			w := serveAskDoubt(h, askDoubtRequest(t, "Why does the pendulum swing?", "image/png", []byte("png-bytes")))

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeEnvelope(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantMessage, resp.Message)
			assert.Equal(t, 1, pipe.calls)
		})
	}
}

func TestAskDoubtRenderTimeout(t *testing.T) {
	h := &Handlers{
		Config:   &config.Config{MaxImageSize: 1 << 20},
		Pipeline: &stubPipeline{result: &pipeline.Result{Script: "from manim import *", EntryPoint: "SolutionScene"}},
		Renderer: &stubRenderer{err: renderer.ErrRenderTimeout},
	}

	w := serveAskDoubt(h, askDoubtRequest(t, "Why does the pendulum swing?", "image/png", []byte("png-bytes")))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "Rendering took too long. Please try a simpler question.", decodeEnvelope(t, w).Message)
}

func TestAskDoubtRenderFailure(t *testing.T) {
	h := &Handlers{
		Config:   &config.Config{MaxImageSize: 1 << 20},
		Pipeline: &stubPipeline{result: &pipeline.Result{Script: "from manim import *", EntryPoint: "SolutionScene"}},
		Renderer: &stubRenderer{err: errors.New("manim exploded")},
	}

	w := serveAskDoubt(h, askDoubtRequest(t, "Why does the pendulum swing?", "image/png", []byte("png-bytes")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to render the solution video", decodeEnvelope(t, w).Message)
}
