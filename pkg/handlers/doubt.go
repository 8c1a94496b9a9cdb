package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/askdoubt/manim-tutor-api/pkg/db"
	"github.com/askdoubt/manim-tutor-api/pkg/middleware"
	"github.com/askdoubt/manim-tutor-api/pkg/pipeline"
	"github.com/askdoubt/manim-tutor-api/pkg/renderer"
	"github.com/askdoubt/manim-tutor-api/pkg/utils"
)

// AskDoubtResponse is the payload returned after a successful render.
type AskDoubtResponse struct {
	Status           string   `json:"status"`
	VideoURL         string   `json:"video_url"`
	Filename         string   `json:"filename"`
	Duration         float64  `json:"duration"`
	GeneratedAt      string   `json:"generated_at"`
	Message          string   `json:"message"`
	Warnings         []string `json:"warnings,omitempty"`
	CreditsRemaining *int     `json:"credits_remaining,omitempty"`
}

// AskDoubt accepts a multipart image+question, runs the script pipeline and
// the renderer, and returns the video URL. Anonymous requests are allowed;
// authenticated ones must have credits left and use one per solution.
func (h *Handlers) AskDoubt(c *gin.Context) {
	claims, authenticated := middleware.GetUserClaimsFromContext(c)
	if authenticated {
		log.Infof("AskDoubt: Authenticated request from user %s", claims.Email)

		credits, err := h.Store.GetCredits(claims.UserID)
		if err != nil {
			log.Errorf("AskDoubt: Failed to read credits for user %s: %v", claims.UserID, err)
			utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to check credits", nil)
			return
		}
		if credits <= 0 {
			c.JSON(http.StatusForbidden, gin.H{
				"error":             "no_credits",
				"message":           "No credits remaining. Join the waitlist for more!",
				"credits_remaining": 0,
			})
			return
		}
		log.Infof("AskDoubt: User %s has %d credits remaining", claims.Email, credits)
	} else {
		log.Info("AskDoubt: Anonymous request (no auth header)")
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		log.Debugf("AskDoubt: Missing image file: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Image file is required", nil)
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		utils.ResponseWithError(c, http.StatusBadRequest, "File must be an image", nil)
		return
	}
	if fileHeader.Size > h.Config.MaxImageSize {
		utils.ResponseWithError(c, http.StatusBadRequest,
			fmt.Sprintf("Image size exceeds maximum allowed (%dMB)", h.Config.MaxImageSize/1024/1024), nil)
		return
	}

	question := strings.TrimSpace(c.PostForm("question"))
	if len(question) < 3 {
		utils.ResponseWithError(c, http.StatusBadRequest, "Question must be at least 3 characters", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Errorf("AskDoubt: Failed to open uploaded image: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Could not read uploaded image", nil)
		return
	}
	imageData, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		log.Errorf("AskDoubt: Failed to read uploaded image: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Could not read uploaded image", nil)
		return
	}

	log.Infof("AskDoubt: Processing request: question length=%d, image size=%d bytes", len(question), len(imageData))

	result, err := h.Pipeline.Run(c.Request.Context(), question, imageData, contentType)
	if err != nil {
		status, message := pipelineErrorResponse(err)
		log.Errorf("AskDoubt: Pipeline failed: %v", err)
		utils.ResponseWithError(c, status, message, nil)
		return
	}
	for _, warning := range result.Warnings {
		log.Warnf("AskDoubt: %s", warning)
	}

	renderResult, err := h.Renderer.Render(c.Request.Context(), result.Script, result.EntryPoint)
	if err != nil {
		log.Errorf("AskDoubt: Render failed: %v", err)
		if errors.Is(err, renderer.ErrRenderTimeout) {
			utils.ResponseWithError(c, http.StatusGatewayTimeout, "Rendering took too long. Please try a simpler question.", nil)
			return
		}
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to render the solution video", nil)
		return
	}
	log.Infof("AskDoubt: Video rendered successfully: %s", renderResult.Filename)

	response := AskDoubtResponse{
		Status:      "success",
		VideoURL:    renderResult.VideoURL,
		Filename:    renderResult.Filename,
		Duration:    renderResult.Duration,
		GeneratedAt: renderResult.GeneratedAt.Format(time.RFC3339),
		Message:     "Solution generated successfully",
		Warnings:    result.Warnings,
	}

	videoUserID := uuid.NullUUID{}
	if authenticated {
		used, remaining, err := h.Store.UseCredit(claims.UserID)
		switch {
		case err != nil:
			log.Errorf("AskDoubt: Failed to use credit for user %s: %v", claims.UserID, err)
		case used:
			response.CreditsRemaining = &remaining
		default:
			// Balance raced to zero after the pre-check; the video is
			// already rendered, so serve it anyway.
			log.Warnf("AskDoubt: Failed to decrement credit for user %s (but video was generated)", claims.Email)
			zero := 0
			response.CreditsRemaining = &zero
		}
		videoUserID = uuid.NullUUID{UUID: claims.UserID, Valid: true}
	}

	if _, err := h.Store.CreateVideo(&db.Video{
		UserID:   videoUserID,
		Question: question,
		Filename: renderResult.Filename,
		VideoURL: renderResult.VideoURL,
		Duration: renderResult.Duration,
	}); err != nil {
		log.Errorf("AskDoubt: Failed to record video: %v", err)
	}

	c.JSON(http.StatusOK, response)
}

// VideoResponse is one render record in a user's history.
type VideoResponse struct {
	ID        uuid.UUID `json:"id"`
	Question  string    `json:"question"`
	Filename  string    `json:"filename"`
	VideoURL  string    `json:"video_url"`
	Duration  float64   `json:"duration"`
	CreatedAt string    `json:"created_at"`
}

// ListMyVideos returns the authenticated user's render history, newest first.
func (h *Handlers) ListMyVideos(c *gin.Context) {
	claims, exists := middleware.GetUserClaimsFromContext(c)
	if !exists {
		log.Error("ListMyVideos: User claims not found in context.")
		utils.ResponseWithError(c, http.StatusInternalServerError, "Authentication error: User claims not found", nil)
		return
	}

	videos, err := h.Store.FindVideosByUserID(claims.UserID)
	if err != nil {
		log.Errorf("ListMyVideos: Failed to list videos for user %s: %v", claims.UserID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to list videos", nil)
		return
	}

	responses := make([]VideoResponse, len(videos))
	for i := range videos {
		responses[i] = VideoResponse{
			ID:        videos[i].ID,
			Question:  videos[i].Question,
			Filename:  videos[i].Filename,
			VideoURL:  videos[i].VideoURL,
			Duration:  videos[i].Duration,
			CreatedAt: videos[i].CreatedAt.Format(http.TimeFormat),
		}
	}

	utils.ResponseWithSuccess(c, http.StatusOK, "Videos retrieved successfully", gin.H{
		"videos": responses,
		"count":  len(responses),
	})
}

// pipelineErrorResponse maps pipeline failures to stable user-facing
// messages. Raw diagnostics stay in the logs.
func pipelineErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrNoCodeFound):
		return http.StatusInternalServerError, "The model did not return a usable script. Please try again."
	case errors.Is(err, pipeline.ErrSyntaxInvalid):
		return http.StatusInternalServerError, "Generated script failed validation. Please try rephrasing your question."
	case errors.Is(err, pipeline.ErrStructureInvalid):
		return http.StatusInternalServerError, "Generated script was incomplete. Please try again."
	case errors.Is(err, pipeline.ErrUnsafeScript):
		return http.StatusUnprocessableEntity, "Generated script was rejected by safety checks."
	default:
		return http.StatusInternalServerError, "Failed to generate solution"
	}
}
