package storage

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"service-marketplace-server/config"
)

// CloudinaryStore uploads files to a Cloudinary account
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryStore(cfg config.StorageConfig) (*CloudinaryStore, error) {
	if cfg.CloudinaryCloudName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials are required")
	}

	cloudinaryURL := fmt.Sprintf("cloudinary://%s:%s@%s", cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryCloudName)
	log.Printf("🔧 Using Cloudinary URL: cloudinary://%s:***@%s", cfg.CloudinaryAPIKey, cfg.CloudinaryCloudName)

	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld, folder: cfg.CloudinaryFolder}, nil
}

func (s *CloudinaryStore) Save(ctx context.Context, folder string, f File) (*StoredFile, error) {
	key := objectKey(path.Join(s.folder, folder), f.Name)
	publicID := strings.TrimSuffix(key, path.Ext(key))

	overwrite := false
	up, err := s.cld.Upload.Upload(ctx, f.Reader, uploader.UploadParams{
		PublicID:     publicID,
		Overwrite:    &overwrite,
		ResourceType: resourceType(f.ContentType),
	})
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}
	if up.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload: %s", up.Error.Message)
	}
	return &StoredFile{URL: up.SecureURL, Key: up.PublicID}, nil
}

func (s *CloudinaryStore) Delete(ctx context.Context, key string) error {
	_, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: key})
	if err != nil {
		return fmt.Errorf("cloudinary destroy %s: %w", key, err)
	}
	return nil
}

// PDFs go up as raw assets, everything else as images
func resourceType(contentType string) string {
	if strings.HasPrefix(contentType, "image/") {
		return "image"
	}
	return "raw"
}
