package server

import (
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ironsheep/colony-counter/internal/detection"
	"github.com/ironsheep/colony-counter/internal/imaging"
	"github.com/ironsheep/colony-counter/internal/session"
	"github.com/ironsheep/colony-counter/internal/vision"
)

// uploadField is the multipart field carrying the image.
const uploadField = "image"

// ProcessRequest is the body of POST /process. Missing fields take the
// configured defaults.
type ProcessRequest struct {
	MinArea   *float64 `json:"min_area"`
	Threshold *int     `json:"threshold"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Ready    bool                   `json:"ready"`
	Backend  string                 `json:"backend"`
	Versions map[string]string      `json:"versions"`
	Controls []Control              `json:"controls"`
	Schema   map[string]interface{} `json:"params_schema"`
	Limits   LimitsInfo             `json:"limits"`
	Style    StyleInfo              `json:"style"`
	Sessions int                    `json:"sessions"`
}

// StyleInfo describes the annotation colours so the page can show a legend.
type StyleInfo struct {
	Outline *imaging.ColorResult `json:"outline,omitempty"`
	Label   *imaging.ColorResult `json:"label,omitempty"`
}

// styleInfo describes the configured colours. Unparsable colours are omitted.
func styleInfo(outline, label string) StyleInfo {
	var info StyleInfo
	if c, err := imaging.ParseColor(outline); err == nil {
		d := imaging.DescribeColor(c)
		info.Outline = &d
	}
	if c, err := imaging.ParseColor(label); err == nil {
		d := imaging.DescribeColor(c)
		info.Label = &d
	}
	return info
}

// LimitsInfo reports upload limits to the page.
type LimitsInfo struct {
	MaxUploadBytes int64 `json:"max_upload_bytes"`
	MaxWidth       int   `json:"max_width"`
	MaxHeight      int   `json:"max_height"`
}

func (s *Server) handleIndex(c *gin.Context) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		s.errorResponse(c, fmt.Errorf("failed to read page: %w", err))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) handleStatus(c *gin.Context) {
	versions := s.engine.Versions()
	c.JSON(http.StatusOK, StatusResponse{
		Ready:    s.engine.Ready(),
		Backend:  versions["backend"],
		Versions: versions,
		Controls: ControlDefinitions(s.cfg),
		Schema:   ParamsSchema(s.cfg),
		Limits: LimitsInfo{
			MaxUploadBytes: s.cfg.MaxUploadBytes,
			MaxWidth:       s.cfg.MaxWidth,
			MaxHeight:      s.cfg.MaxHeight,
		},
		Style:    styleInfo(s.cfg.OutlineColor, s.cfg.LabelColor),
		Sessions: s.sessions.Len(),
	})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	sess := s.sessions.Create()
	c.JSON(http.StatusCreated, sess.Snapshot())
}

// session looks up the :id session, writing a 404 when it is unknown.
func (s *Server) session(c *gin.Context) (*session.Session, bool) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		s.errorResponse(c, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleSnapshot(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.sessions.Delete(c.Param("id")); err != nil {
		s.errorResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUpload(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	upload, err := s.readUpload(c)
	if err != nil {
		s.errorResponse(c, sess.RejectUpload(err))
		return
	}

	if err := sess.Load(upload); err != nil {
		s.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// readUpload reads the image field, stopping one byte past the cap so an
// oversized file is still recognised as too large.
func (s *Server) readUpload(c *gin.Context) (imaging.Upload, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*s.cfg.MaxUploadBytes+1<<20)

	fh, err := c.FormFile(uploadField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return imaging.Upload{}, fmt.Errorf("%w: request body exceeds %d bytes", imaging.ErrTooLarge, tooBig.Limit)
		}
		return imaging.Upload{}, fmt.Errorf("%w: missing %q file field: %v", imaging.ErrUnsupportedType, uploadField, err)
	}

	f, err := fh.Open()
	if err != nil {
		return imaging.Upload{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return imaging.Upload{}, fmt.Errorf("failed to read upload: %w", err)
	}

	return imaging.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Data:        data,
	}, nil
}

func (s *Server) handleProcess(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	params, err := s.bindParams(c)
	if err != nil {
		s.errorResponse(c, sess.RejectParams(err))
		return
	}

	if _, err := sess.Process(c.Request.Context(), params); err != nil {
		s.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// bindParams reads an optional ProcessRequest body over the defaults.
func (s *Server) bindParams(c *gin.Context) (detection.Params, error) {
	params := defaultParams(s.cfg)

	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		return params, fmt.Errorf("%w: %v", detection.ErrInvalidParams, err)
	}
	if req.MinArea != nil {
		params.MinArea = *req.MinArea
	}
	if req.Threshold != nil {
		params.Threshold = *req.Threshold
	}
	return params, nil
}

func (s *Server) handleReset(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.Reset()
	c.JSON(http.StatusOK, sess.Snapshot())
}

type surface int

const (
	surfaceOriginal surface = iota
	surfaceAnnotated
)

func (s *Server) handleSurface(which surface) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.session(c)
		if !ok {
			return
		}

		var img image.Image
		if which == surfaceOriginal {
			img = sess.Original()
		} else {
			img = sess.Annotated()
		}
		if img == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": &session.ErrorPanel{
				Kind:    session.KindNoImageLoaded,
				Message: "Nothing to show yet.",
			}})
			return
		}

		c.Header("Cache-Control", "no-store")

		// ?format=base64 returns the image inline as JSON.
		if c.Query("format") == "base64" {
			encoded, err := imaging.EncodeBase64(img)
			if err != nil {
				s.errorResponse(c, &vision.ProcessingError{Op: "encode", Err: err})
				return
			}
			c.JSON(http.StatusOK, encoded)
			return
		}

		data, err := imaging.EncodePNG(img)
		if err != nil {
			s.errorResponse(c, &vision.ProcessingError{Op: "encode", Err: err})
			return
		}
		c.Data(http.StatusOK, "image/png", data)
	}
}

// errorResponse writes err as an error panel with the matching status.
func (s *Server) errorResponse(c *gin.Context, err error) {
	panel := session.Classify(err)
	status := statusFor(panel.Kind)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "kind", panel.Kind, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": panel})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case session.KindUnsupportedType:
		return http.StatusUnsupportedMediaType
	case session.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case session.KindDecode:
		return http.StatusUnprocessableEntity
	case session.KindPipelineNotReady:
		return http.StatusServiceUnavailable
	case session.KindNoImageLoaded, session.KindBusy:
		return http.StatusConflict
	case session.KindInvalidParams:
		return http.StatusBadRequest
	case session.KindNotFound:
		return http.StatusNotFound
	case session.KindCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
