package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"slices"
	"time"

	"we-planet-api/models"
	"we-planet-api/utils"

	"github.com/gabriel-vasile/mimetype"
	"gorm.io/gorm"
)

// UploadInput is one file received from a client.
type UploadInput struct {
	Filename string
	Size     int64
	Body     io.Reader
}

type UploadService struct {
	DB           *gorm.DB
	Store        utils.ObjectStore
	MaxSize      int64
	AllowedTypes []string
	now          func() time.Time
}

func NewUploadService(db *gorm.DB, store utils.ObjectStore, maxSize int64, allowedTypes []string) *UploadService {
	return &UploadService{DB: db, Store: store, MaxSize: maxSize, AllowedTypes: allowedTypes, now: time.Now}
}

// sniffLen is how many leading bytes are inspected to detect the content type.
const sniffLen = 3072

// Upload stores an image and records its owner. The content type is detected from
// the file bytes, never taken from the client.
func (s *UploadService) Upload(ctx context.Context, actor Identity, in UploadInput) (*models.Image, error) {
	if in.Size <= 0 {
		return nil, Validation("validation_failed", "file is empty")
	}
	if in.Size > s.MaxSize {
		return nil, Validation("file_too_large", "file exceeds the maximum upload size").
			WithDetails(map[string]any{"max_size": s.MaxSize})
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, Validation("validation_failed", "could not read upload")
	}
	head = head[:n]
	contentType := mimetype.Detect(head).String()
	if !slices.Contains(s.AllowedTypes, contentType) {
		return nil, Validation("invalid_file_type", "file type is not allowed").
			WithDetails(map[string]any{"detected": contentType, "allowed": s.AllowedTypes})
	}

	filename := utils.ImageFilename(in.Filename, contentType, s.now())
	key := utils.ImageKeyPrefix + filename
	body := io.MultiReader(bytes.NewReader(head), in.Body)

	url, err := s.Store.Put(ctx, key, body, in.Size, contentType)
	if err != nil {
		log.Printf("❌ [UPLOAD] store put failed for %s: %v", key, err)
		return nil, Upstream("failed to store file", err)
	}

	image := models.Image{
		Filename:         filename,
		Key:              key,
		OriginalFilename: in.Filename,
		ContentType:      contentType,
		Size:             in.Size,
		URL:              url,
		OwnerID:          actor.UserID,
	}
	if err := s.DB.Create(&image).Error; err != nil {
		if delErr := s.Store.Delete(ctx, key); delErr != nil {
			log.Printf("⚠️ [UPLOAD] orphaned object %s: %v", key, delErr)
		}
		return nil, Upstream("failed to record upload", err)
	}
	log.Printf("📷 [UPLOAD] %s uploaded %s (%d bytes)", actor.Username, filename, in.Size)
	return &image, nil
}

func (s *UploadService) find(filename string) (*models.Image, error) {
	if !utils.ValidFilename(filename) {
		return nil, Validation("validation_failed", "invalid filename")
	}
	var image models.Image
	if err := s.DB.Where("filename = ?", filename).First(&image).Error; err != nil {
		return nil, notFoundOr(err, "image")
	}
	return &image, nil
}

// Open returns the image record and its content. Callers must close the body.
func (s *UploadService) Open(ctx context.Context, filename string) (*models.Image, *utils.Object, error) {
	image, err := s.find(filename)
	if err != nil {
		return nil, nil, err
	}
	obj, err := s.Store.Get(ctx, image.Key)
	if err != nil {
		if errors.Is(err, utils.ErrObjectNotFound) {
			return nil, nil, NotFound("image")
		}
		return nil, nil, Upstream("failed to read file", err)
	}
	return image, obj, nil
}

// Delete removes an image. Only its uploader or an admin may delete it.
func (s *UploadService) Delete(ctx context.Context, actor Identity, filename string) error {
	image, err := s.find(filename)
	if err != nil {
		return err
	}
	if image.OwnerID != actor.UserID && !actor.IsAdmin {
		return Forbidden("only the uploader can delete this image")
	}
	if err := s.Store.Delete(ctx, image.Key); err != nil && !errors.Is(err, utils.ErrObjectNotFound) {
		return Upstream("failed to delete file", err)
	}
	if err := s.DB.Delete(image).Error; err != nil {
		return Upstream("failed to delete image record", err)
	}
	return nil
}
