package renderer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// FallbackSceneClass is rendered when the caller could not name an entry
// point. It matches the class name the generation prompt asks for.
const FallbackSceneClass = "PhysicsSolution"

var (
	ErrRenderTimeout = errors.New("manim rendering timed out")
	ErrNoVideoOutput = errors.New("video file not found after rendering")
)

// RenderResult describes a finished video on local disk.
type RenderResult struct {
	VideoPath   string
	Filename    string
	VideoURL    string
	Duration    float64
	GeneratedAt time.Time
	FileID      string
}

// Renderer runs the manim CLI against a script and collects the produced
// video. Each render works in its own media directory under tempDir and
// moves the final file into videoDir.
type Renderer struct {
	videoDir string
	tempDir  string
	quality  string
	timeout  time.Duration
}

func NewRenderer(videoDir, tempDir, quality string, timeout time.Duration) (*Renderer, error) {
	if err := os.MkdirAll(videoDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating video directory: %w", err)
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	return &Renderer{
		videoDir: videoDir,
		tempDir:  tempDir,
		quality:  quality,
		timeout:  timeout,
	}, nil
}

// Render writes the script to a temp file, runs manim on the named scene
// class under the configured timeout, and moves the newest produced mp4 to
// its final name. Temp artifacts are removed on every path.
func (r *Renderer) Render(ctx context.Context, script, entryPoint string) (*RenderResult, error) {
	if entryPoint == "" {
		entryPoint = FallbackSceneClass
	}
	fileID := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	timestamp := time.Now().Format("20060102_150405")

	scriptPath := filepath.Join(r.tempDir, fmt.Sprintf("scene_%s_%s.py", fileID, timestamp))
	mediaDir := filepath.Join(r.tempDir, "render_"+fileID)
	defer r.cleanup(scriptPath, mediaDir)

	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return nil, fmt.Errorf("writing scene file: %w", err)
	}
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media directory: %w", err)
	}

	if err := r.executeManim(ctx, scriptPath, mediaDir, entryPoint); err != nil {
		return nil, err
	}

	videoPath, err := newestVideo(mediaDir)
	if err != nil {
		return nil, err
	}

	finalFilename := fmt.Sprintf("solution_%s_%s.mp4", fileID, timestamp)
	finalPath := filepath.Join(r.videoDir, finalFilename)
	if err := moveFile(videoPath, finalPath); err != nil {
		return nil, fmt.Errorf("moving video to storage: %w", err)
	}

	result := &RenderResult{
		VideoPath:   finalPath,
		Filename:    finalFilename,
		VideoURL:    "/videos/" + finalFilename,
		Duration:    r.probeDuration(ctx, finalPath),
		GeneratedAt: time.Now(),
		FileID:      fileID,
	}
	log.WithFields(log.Fields{
		"filename": result.Filename,
		"duration": result.Duration,
	}).Info("Render finished")
	return result, nil
}

func (r *Renderer) executeManim(ctx context.Context, scriptPath, mediaDir, entryPoint string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "manim",
		"-"+r.quality,
		"--format", "mp4",
		"--disable_caching",
		"--media_dir", mediaDir,
		scriptPath,
		entryPoint,
	)
	log.WithField("scene_class", entryPoint).Info("Executing manim")

	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w after %s", ErrRenderTimeout, r.timeout)
	}
	if err != nil {
		return fmt.Errorf("manim command failed: %s", tail(string(output), 1000))
	}
	return nil
}

// newestVideo walks the media tree for mp4 files and returns the most
// recently modified one. Manim nests output under media/videos/<scene>/<quality>.
func newestVideo(mediaDir string) (string, error) {
	var (
		newestPath string
		newestTime time.Time
	)
	err := filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".mp4") {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(newestTime) {
			newestTime = info.ModTime()
			newestPath = path
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scanning render output: %w", err)
	}
	if newestPath == "" {
		return "", ErrNoVideoOutput
	}
	return newestPath, nil
}

// probeDuration asks ffprobe for the container duration. Any failure reads
// as zero rather than failing the render.
func (r *Renderer) probeDuration(ctx context.Context, videoPath string) float64 {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		log.WithError(err).Warn("ffprobe failed, reporting zero duration")
		return 0
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0
	}
	return duration
}

func (r *Renderer) cleanup(scriptPath, mediaDir string) {
	if err := os.Remove(scriptPath); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Failed to remove temp scene file")
	}
	if err := os.RemoveAll(mediaDir); err != nil {
		log.WithError(err).Warn("Failed to remove render media directory")
	}
}

// moveFile renames when possible and falls back to copy+remove for
// cross-device moves.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
