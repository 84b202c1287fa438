package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ocrbox/models"
	"ocrbox/pkg/artifact"
	"ocrbox/pkg/kvstore"
	"ocrbox/pkg/logger"
	"ocrbox/pkg/ocr"
	"ocrbox/pkg/profile"
)

const maxImageBytes = 5 * 1024 * 1024

// server holds the injected capabilities the handlers need. No package
// globals; tests build their own server around fakes.
type server struct {
	log       *logger.Logger
	profiles  *profile.Manager
	artifacts *artifact.Pipeline
}

func setupRoutes(r *gin.Engine, s *server) {
	r.GET("/healthcheck", s.healthHandler)
	r.POST("/profiles", s.createProfileHandler)
	r.GET("/profiles/:id", s.getProfileHandler)
	r.POST("/profiles/:id/image", s.uploadImageHandler)
	r.GET("/profiles/:id/text", s.getTextHandler)
}

func (s *server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createProfileHandler registers a profile from a JSON body carrying exactly
// name, age and city.
func (s *server) createProfileHandler(c *gin.Context) {
	var payload map[string]any
	// An unparseable or absent body behaves like an empty payload: the
	// manager reports every required key missing.
	if err := c.ShouldBindJSON(&payload); err != nil {
		payload = nil
	}

	id, err := s.profiles.Create(c.Request.Context(), payload)
	if err != nil {
		var ve *profile.ValidationError
		if errors.As(err, &ve) {
			msg := "Bad Request."
			body := gin.H{}
			if len(ve.Missing) > 0 {
				msg += fmt.Sprintf(" Missing required keys: %v.", ve.Missing)
				body["missing_keys"] = ve.Missing
			}
			if len(ve.Invalid) > 0 {
				msg += fmt.Sprintf(" Invalid values for keys: %v.", ve.Invalid)
				body["invalid_keys"] = ve.Invalid
			}
			body["msg"] = msg
			c.JSON(http.StatusBadRequest, body)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "An Internal Server Error happened. User profile creation failed."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": fmt.Sprintf("Profile with id '%s' created successfully.", id)})
}

func (s *server) getProfileHandler(c *gin.Context) {
	id := c.Param("id")
	rec, err := s.profiles.Get(c.Request.Context(), id)
	if err != nil {
		// "no such profile" and "store down" are distinct outcomes; a
		// transient outage must never read as a missing profile.
		if errors.Is(err, kvstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"msg": fmt.Sprintf("Profile with id '%s' does not exist.", id)})
			return
		}
		s.log.Error("profile fetch failed", "id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "An Internal Server Error happened. User profile couldn't be fetched."})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// uploadImageHandler accepts the profile's image as a raw binary body or a
// multipart "file" field and pushes it through the OCR pipeline.
func (s *server) uploadImageHandler(c *gin.Context) {
	id := c.Param("id")
	image, err := readImageBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Bad Request. Could not read image payload."})
		return
	}

	ref, err := s.artifacts.Upload(c.Request.Context(), id, image)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"artifact_id": ref, "status": models.StatusComplete})
	case errors.Is(err, ocr.ErrEmptyImage):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Bad Request. Empty image payload."})
	case errors.Is(err, artifact.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"msg": "Forbidden. Image upload requires an existing profile."})
	case errors.Is(err, artifact.ErrOCRFailed):
		// The artifact persisted with status failed; hand back the
		// reference so the caller can observe it via the text endpoint.
		c.JSON(http.StatusInternalServerError, gin.H{
			"artifact_id": ref,
			"status":      models.StatusFailed,
			"msg":         "An Internal Server Error happened. Text extraction failed.",
		})
	default:
		s.log.Error("upload failed", "profile", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "An Internal Server Error happened. Image upload failed."})
	}
}

func (s *server) getTextHandler(c *gin.Context) {
	id := c.Param("id")
	rec, err := s.artifacts.GetResult(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"msg": fmt.Sprintf("No uploaded image found for profile id '%s'.", id)})
			return
		}
		s.log.Error("artifact fetch failed", "profile", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "An Internal Server Error happened. Extracted text couldn't be fetched."})
		return
	}
	switch rec.Status {
	case models.StatusPending:
		c.JSON(http.StatusAccepted, gin.H{"status": models.StatusPending, "msg": "Text extraction is still in progress. Retry later."})
	case models.StatusFailed:
		c.JSON(http.StatusInternalServerError, gin.H{"status": models.StatusFailed, "msg": "An Internal Server Error happened. Text extraction failed."})
	default:
		c.JSON(http.StatusOK, gin.H{"text": rec.Text})
	}
}

// readImageBody returns the upload's bytes. Multipart forms use the "file"
// field, anything else is treated as a raw binary body.
func readImageBody(c *gin.Context) ([]byte, error) {
	ct := c.GetHeader("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, err
		}
		if fh.Size > maxImageBytes {
			return nil, fmt.Errorf("file too large")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	if c.Request.Body == nil {
		return nil, nil
	}
	return io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes))
}
