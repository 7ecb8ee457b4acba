package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"ChatHub/config"
	"ChatHub/pkg/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	// ErrFileTooLarge 头像超过大小限制
	ErrFileTooLarge = errors.New("avatar file too large")
	// ErrFileType 头像类型不在允许列表或扩展名与内容不符
	ErrFileType = errors.New("avatar file type not allowed")
)

// AvatarStore 头像对象存储
type AvatarStore struct {
	client *minio.Client
	config config.MinIOConfig
}

// Build 基于配置创建头像存储，并确保 bucket 存在（公开读）。
func Build(ctx context.Context, cfg config.MinIOConfig) (*AvatarStore, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("minio endpoint is empty")
	}
	if strings.TrimSpace(cfg.BucketName) == "" {
		return nil, errors.New("minio bucketName is empty")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Location}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info(ctx, "头像 Bucket 创建成功", logger.String("bucket", cfg.BucketName))

		if err := client.SetBucketPolicy(ctx, cfg.BucketName, publicReadPolicy(cfg.BucketName)); err != nil {
			logger.Warn(ctx, "设置头像 Bucket 公开策略失败",
				logger.String("bucket", cfg.BucketName),
				logger.ErrorField("error", err),
			)
		}
	}

	return &AvatarStore{client: client, config: cfg}, nil
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}

// UploadAvatar 上传用户头像，返回可公开访问的 URL。
// 文件类型以内容嗅探结果为准，扩展名必须与之匹配。
func (s *AvatarStore) UploadAvatar(ctx context.Context, userUUID, fileName string, reader io.Reader, size int64) (string, error) {
	if s.config.MaxFileSize > 0 && size > s.config.MaxFileSize {
		return "", ErrFileTooLarge
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(reader, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("读取头像内容失败: %w", err)
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	if !s.isAllowedType(contentType) || !extensionMatches(fileName, contentType) {
		logger.Warn(ctx, "头像类型不合法",
			logger.String("file_name", fileName),
			logger.String("detected_type", contentType),
		)
		return "", ErrFileType
	}

	objectName := "avatars/" + userUUID + "/" + uuid.New().String() + strings.ToLower(filepath.Ext(fileName))

	uploadCtx := ctx
	if s.config.UploadTimeout > 0 {
		var cancel context.CancelFunc
		uploadCtx, cancel = context.WithTimeout(ctx, s.config.UploadTimeout)
		defer cancel()
	}

	info, err := s.client.PutObject(uploadCtx, s.config.BucketName, objectName,
		io.MultiReader(bytes.NewReader(head), reader), size,
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		logger.Error(ctx, "头像上传失败",
			logger.String("object", objectName),
			logger.ErrorField("error", err),
		)
		return "", fmt.Errorf("上传失败: %w", err)
	}

	url := s.objectURL(objectName)
	logger.Info(ctx, "头像上传成功",
		logger.String("object", objectName),
		logger.Int64("size", info.Size),
	)
	return url, nil
}

func (s *AvatarStore) objectURL(objectName string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(s.config.BaseURL, "/"), s.config.BucketName, objectName)
}

func (s *AvatarStore) isAllowedType(contentType string) bool {
	if len(s.config.AllowedTypes) == 0 {
		return true
	}
	for _, allowed := range s.config.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

var avatarExtensions = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/gif":  {".gif"},
	"image/webp": {".webp"},
}

// extensionMatches 防止把可执行文件改名为 .jpg 上传
func extensionMatches(fileName, contentType string) bool {
	exts, ok := avatarExtensions[strings.ToLower(contentType)]
	if !ok {
		return false
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
