package authorflow

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"
)

const (
	maxImageWidth = 1080
	jpegQuality   = 82
	maxUploadSize = 10 << 20 // 10MB
	uploadsSubdir = "uploads"
)

// processImage decodes src, scales it down to maxImageWidth when wider, and
// re-encodes it as JPEG.
func processImage(src io.Reader) ([]byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxImageWidth {
		newH := h * maxImageWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxImageWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// imageFilename names a post's image after its id so a new upload replaces
// the old file.
func imageFilename(postID, originalName string) string {
	base := Slugify(strings.TrimSuffix(originalName, filepath.Ext(originalName)))
	if base == "" {
		return Slugify(postID) + ".jpg"
	}
	return Slugify(postID) + "-" + base + ".jpg"
}

func (a *App) handlePostImage(c echo.Context) error {
	ctx := c.Request().Context()
	owner := Owner(c)

	post, err := a.Store.GetPost(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}
		return err
	}
	if post.Owner != owner {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	file, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no image file provided")
	}
	if file.Size > maxUploadSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large (max 10MB)")
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	data, err := processImage(src)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid image: "+err.Error())
	}

	dir := filepath.Join(a.Config.StaticDir, uploadsSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	name := imageFilename(post.ID, file.Filename)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if post.Image != "" {
		if old := filepath.Base(post.Image); old != name {
			_ = os.Remove(filepath.Join(dir, old))
		}
	}

	post.Image = "/public/" + uploadsSubdir + "/" + name
	if err := a.Store.SetPostImage(ctx, post.ID, post.Image); err != nil {
		return err
	}
	a.Cache.Invalidate(owner)
	return c.JSON(http.StatusOK, post)
}
