package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crsongirkar/YT-Platform/internal/access"
	"github.com/crsongirkar/YT-Platform/internal/auth"
	"github.com/crsongirkar/YT-Platform/internal/logging"
	"github.com/crsongirkar/YT-Platform/internal/models"
	"github.com/crsongirkar/YT-Platform/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxTitleLength  = 200
	// multipart parts beyond this size spill to temporary files.
	multipartMemory = 32 << 20
)

// VideoHandler provides endpoints for uploading, listing and watching videos.
type VideoHandler struct {
	Videos   VideoStore
	Access   AccessResolver
	Storage  ObjectStorage
	MaxBytes int64
	NowFunc  func() time.Time
}

// Collection dispatches /api/v1/videos to Create or List.
func (h VideoHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Create(w, r)
	case http.MethodGet:
		h.List(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Create handles POST /api/v1/videos multipart uploads.
func (h VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	ownerID, ok := auth.AccountIDFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}
	if h.Videos == nil {
		logger.Error("video store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "video service unavailable")
		return
	}

	if h.MaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("upload exceeds limit", "limit", tooLarge.Limit)
			respondError(ctx, w, http.StatusRequestEntityTooLarge, "upload is too large")
			return
		}
		logger.Warn("invalid upload payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	req, err := parseUploadRequest(r)
	if err != nil {
		logger.Warn("upload rejected", "error", err)
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	video := models.Video{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       req.Title,
		Description: req.Description,
		VideoType:   req.VideoType,
		Price:       req.Price,
		VideoURL:    req.VideoURL,
		CreatedAt:   h.now(),
	}

	if req.File != nil {
		if h.Storage == nil {
			logger.Error("object storage unavailable")
			respondError(ctx, w, http.StatusServiceUnavailable, "uploads are unavailable")
			return
		}

		file, err := req.File.Open()
		if err != nil {
			logger.Error("open uploaded file", "error", err)
			respondError(ctx, w, http.StatusBadRequest, "unable to read uploaded file")
			return
		}
		defer file.Close()

		key := objectKey(video.VideoType, req.File.Filename)
		public := video.VideoType == models.VideoTypeShort
		location, err := h.Storage.Save(ctx, key, file, storage.SaveOptions{
			Public:      public,
			ContentType: req.File.Header.Get("Content-Type"),
		})
		if err != nil {
			logger.Error("store uploaded video", "error", err, "key", key)
			respondError(ctx, w, http.StatusBadGateway, "failed to store video")
			return
		}

		video.StoragePath = key
		video.VideoURL = location
	}

	if err := h.Videos.Create(ctx, video); err != nil {
		logger.Error("persist video", "error", err, "videoId", video.ID)
		if video.StoragePath != "" {
			if derr := h.Storage.Delete(ctx, video.StoragePath); derr != nil {
				logger.Warn("remove orphaned upload", "error", derr, "key", video.StoragePath)
			}
		}
		respondError(ctx, w, http.StatusInternalServerError, "failed to save video")
		return
	}

	logger.Info("video created", "videoId", video.ID, "videoType", video.VideoType, "price", video.Price)

	// The owner always plays their own upload.
	view := newVideoView(access.Access{Video: video, URL: video.VideoURL, Entitled: true})
	if h.Access != nil {
		if resolved, err := h.Access.ResolveVideo(ctx, ownerID, video); err == nil {
			view = newVideoView(resolved)
		} else {
			logger.Warn("resolve new video", "error", err, "videoId", video.ID)
		}
	}
	respondJSON(ctx, w, http.StatusCreated, view)
}

// List handles GET /api/v1/videos.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Videos == nil || h.Access == nil {
		logger.Error("video dependencies unavailable", "hasVideos", h.Videos != nil, "hasAccess", h.Access != nil)
		respondError(ctx, w, http.StatusInternalServerError, "video service unavailable")
		return
	}

	page, limit := pagination(r.URL.Query())
	accountID, _ := auth.AccountIDFromContext(ctx)

	videos, err := h.Videos.List(ctx, limit, (page-1)*limit)
	if err != nil {
		logger.Error("list videos", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load videos")
		return
	}

	views := make([]videoView, 0, len(videos))
	for _, video := range videos {
		resolved, err := h.Access.ResolveVideo(ctx, accountID, video)
		if err != nil {
			logger.Error("resolve video access", "error", err, "videoId", video.ID)
			respondError(ctx, w, http.StatusInternalServerError, "failed to load videos")
			return
		}
		views = append(views, newVideoView(resolved))
	}

	respondJSON(ctx, w, http.StatusOK, videoListResponse{Videos: views, Page: page, Limit: limit})
}

// Get handles GET /api/v1/videos/{id}.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Videos == nil || h.Access == nil {
		logger.Error("video dependencies unavailable", "hasVideos", h.Videos != nil, "hasAccess", h.Access != nil)
		respondError(ctx, w, http.StatusInternalServerError, "video service unavailable")
		return
	}

	accountID, _ := auth.AccountIDFromContext(ctx)
	videoID := r.PathValue("id")

	resolved, err := h.Access.Resolve(ctx, accountID, videoID)
	if err != nil {
		if errors.Is(err, access.ErrVideoNotFound) {
			respondError(ctx, w, http.StatusNotFound, "video not found")
			return
		}
		logger.Error("resolve video", "error", err, "videoId", videoID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load video")
		return
	}

	if err := h.Videos.IncrementViews(ctx, videoID); err != nil {
		logger.Warn("increment views", "error", err, "videoId", videoID)
	} else {
		resolved.Video.ViewCount++
	}

	respondJSON(ctx, w, http.StatusOK, newVideoView(resolved))
}

func (h VideoHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

type uploadRequest struct {
	Title       string
	Description string
	VideoType   string
	Price       int64
	VideoURL    string
	File        *multipart.FileHeader
}

func parseUploadRequest(r *http.Request) (uploadRequest, error) {
	req := uploadRequest{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
		VideoType:   strings.ToLower(strings.TrimSpace(r.FormValue("videoType"))),
		VideoURL:    strings.TrimSpace(r.FormValue("videoUrl")),
	}

	if req.Title == "" {
		return uploadRequest{}, errors.New("title is required")
	}
	if len(req.Title) > maxTitleLength {
		return uploadRequest{}, fmt.Errorf("title must be at most %d characters", maxTitleLength)
	}
	if req.VideoType != models.VideoTypeShort && req.VideoType != models.VideoTypeLong {
		return uploadRequest{}, errors.New("videoType must be short or long")
	}

	if raw := strings.TrimSpace(r.FormValue("price")); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || price < 0 {
			return uploadRequest{}, errors.New("price must be a non-negative integer")
		}
		req.Price = price
	}

	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["videoFile"]; len(files) > 0 {
			req.File = files[0]
		}
	}
	if req.File != nil && !strings.HasPrefix(req.File.Header.Get("Content-Type"), "video/") {
		return uploadRequest{}, errors.New("videoFile must be a video")
	}

	switch req.VideoType {
	case models.VideoTypeShort:
		if req.File == nil {
			return uploadRequest{}, errors.New("short videos require a videoFile upload")
		}
		req.Price = 0
		req.VideoURL = ""
	case models.VideoTypeLong:
		if req.File != nil {
			req.VideoURL = ""
			break
		}
		if req.VideoURL == "" {
			return uploadRequest{}, errors.New("long videos require a videoFile upload or a videoUrl")
		}
		parsed, err := url.ParseRequestURI(req.VideoURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return uploadRequest{}, errors.New("videoUrl must be an absolute http(s) URL")
		}
	}

	return req, nil
}

func objectKey(videoType, filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." || name == "_" {
		name = "video"
	}
	return fmt.Sprintf("%s/%s-%s", videoType, uuid.NewString(), name)
}

func pagination(query url.Values) (page, limit int) {
	page, err := strconv.Atoi(query.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err = strconv.Atoi(query.Get("limit"))
	if err != nil || limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

type videoView struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	VideoType   string    `json:"videoType"`
	Price       int64     `json:"price"`
	VideoURL    string    `json:"videoUrl,omitempty"`
	Thumbnail   string    `json:"thumbnailUrl,omitempty"`
	ViewCount   int64     `json:"viewCount"`
	Purchased   bool      `json:"purchased"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newVideoView(a access.Access) videoView {
	return videoView{
		ID:          a.Video.ID,
		OwnerID:     a.Video.OwnerID,
		Title:       a.Video.Title,
		Description: a.Video.Description,
		VideoType:   a.Video.VideoType,
		Price:       a.Video.Price,
		VideoURL:    a.URL,
		Thumbnail:   a.Video.ThumbnailURL,
		ViewCount:   a.Video.ViewCount,
		Purchased:   a.Entitled,
		CreatedAt:   a.Video.CreatedAt,
	}
}

type videoListResponse struct {
	Videos []videoView `json:"videos"`
	Page   int         `json:"page"`
	Limit  int         `json:"limit"`
}
