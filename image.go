package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

// imageExtension sniffs the format of raw image bytes and maps it to a file
// extension. Formats outside the supported set are skipped by the caller.
func imageExtension(data []byte) (string, bool) {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	case "image/gif":
		return ".gif", true
	case "image/webp":
		return ".webp", true
	default:
		return "", false
	}
}

// parseImageURL extracts the src attribute from an inline <img> line.
func parseImageURL(line string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(line))
	if err != nil {
		return "", false
	}
	src, ok := doc.Find("img").First().Attr("src")
	if !ok || src == "" {
		return "", false
	}
	return src, true
}

// urlStem derives a file name stem from the image URL path, with a random
// fallback when the URL carries none.
func urlStem(imageURL string) string {
	parsed, err := url.Parse(imageURL)
	if err == nil {
		base := path.Base(parsed.Path)
		if ext := path.Ext(base); ext != "" {
			base = strings.TrimSuffix(base, ext)
		}
		if base != "" && base != "." && base != "/" {
			return base
		}
	}
	return uuid.New().String()[:8]
}

// imageSaver downloads inline chapter images and persists them next to the
// text output.
type imageSaver struct {
	client *HBClient
	logger Logger
}

// resolveLine replaces an <img> line with a placeholder referencing the saved
// file. Any failure is logged and reported as not-ok so the caller can drop
// the line; image trouble never fails a chapter.
func (s *imageSaver) resolveLine(line string) (string, bool) {
	imageURL, ok := parseImageURL(line)
	if !ok {
		s.logger.Log("Invalid image URL: %s", line)
		return "", false
	}

	data, err := s.client.GetImage(imageURL)
	if err != nil {
		s.logger.Log("%v: %s", err, line)
		return "", false
	}

	ext, ok := imageExtension(data)
	if !ok {
		s.logger.Log("Image is not a supported format: %s", imageURL)
		return "", false
	}

	name := urlStem(imageURL) + ext
	if err := os.WriteFile(name, data, 0o644); err != nil {
		s.logger.Log("Failed to save image %s: %v", name, err)
		return "", false
	}

	return fmt.Sprintf("[IMAGE] %s", name), true
}
