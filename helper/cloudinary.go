package helper

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cinema_pos/config"
	"cinema_pos/model"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gofiber/fiber/v2/log"
)

const productThumb = "c_fill,g_auto,h_400,w_400/f_auto/q_auto"

// InitCloudinary returns nil when no cloud is configured; product images then
// fall back to their stored URL. CLOUDINARY_URL is honoured when the split
// settings are empty.
func InitCloudinary(cfg config.Cloudinary) *cloudinary.Cloudinary {
	var (
		cld *cloudinary.Cloudinary
		err error
	)
	switch url := config.Config("CLOUDINARY_URL"); {
	case cfg.CloudName != "":
		cld, err = cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	case url != "":
		cld, err = cloudinary.NewFromURL(url)
	default:
		return nil
	}
	if err != nil {
		log.Errorw("cloudinary init failed", "error", err)
		return nil
	}
	cld.Config.URL.Secure = true
	return cld
}

// ProductImageURL builds the delivery URL for a product image.
func ProductImageURL(cld *cloudinary.Cloudinary, p model.Product) string {
	if cld == nil || p.ImagePublicId == "" {
		return p.ImageUrl
	}
	img, err := cld.Image(p.ImagePublicId)
	if err != nil {
		return p.ImageUrl
	}
	img.Transformation = productThumb
	url, err := img.String()
	if err != nil {
		return p.ImageUrl
	}
	return url
}

// ExtractPublicID recovers the public id from a Cloudinary delivery URL:
// https://res.cloudinary.com/<cloud>/image/upload/[<transform>/][v<version>/]<folder>/<id>.<ext>
// Non-Cloudinary URLs yield "".
func ExtractPublicID(url string) string {
	if !strings.Contains(url, "res.cloudinary.com/") {
		return ""
	}
	_, rest, ok := strings.Cut(url, "/upload/")
	if !ok {
		return ""
	}
	parts := strings.Split(rest, "/")
	for len(parts) > 1 && (isTransformation(parts[0]) || isVersion(parts[0])) {
		parts = parts[1:]
	}
	id := strings.Join(parts, "/")
	return strings.TrimSuffix(id, path.Ext(id))
}

// isTransformation matches segments like "c_fill,w_400" or "q_auto".
func isTransformation(seg string) bool {
	for _, step := range strings.Split(seg, ",") {
		key, _, ok := strings.Cut(step, "_")
		if !ok || len(key) == 0 || len(key) > 2 {
			return false
		}
	}
	return true
}

func isVersion(seg string) bool {
	if len(seg) < 2 || seg[0] != 'v' {
		return false
	}
	for _, r := range seg[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func UploadProductImage(ctx context.Context, cld *cloudinary.Cloudinary, p model.Product, file io.Reader) (publicID, secureURL string, err error) {
	if cld == nil {
		return "", "", fmt.Errorf("cloudinary is not configured")
	}
	res, err := cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:       fmt.Sprintf("theaters/%d/products", p.TheaterId),
		PublicID:     fmt.Sprintf("product_%d_%d", p.ID, time.Now().UnixNano()),
		ResourceType: "image",
	})
	if err != nil {
		return "", "", err
	}
	return res.PublicID, res.SecureURL, nil
}

func DestroyImage(ctx context.Context, cld *cloudinary.Cloudinary, publicID string) {
	if cld == nil || publicID == "" {
		return
	}
	if _, err := cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		log.Warnw("cloudinary destroy failed", "publicId", publicID, "error", err)
	}
}
