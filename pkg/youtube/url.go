package youtube

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`[a-zA-Z0-9_-]{11}`)

// IsYouTubeURL checks if a URL appears to be from YouTube
func IsYouTubeURL(urlStr string) bool {
	return strings.Contains(urlStr, "youtube.com") || strings.Contains(urlStr, "youtu.be")
}

// IsURL checks if a string appears to be a URL rather than a search query
func IsURL(str string) bool {
	return strings.HasPrefix(str, "http://") || strings.HasPrefix(str, "https://") ||
		strings.HasPrefix(str, "www.") || IsYouTubeURL(str)
}

// ExtractVideoID extracts the video ID from a YouTube URL
func ExtractVideoID(youtubeURL string) string {
	if strings.Contains(youtubeURL, "youtube.com") {
		parsed, err := url.Parse(youtubeURL)
		if err != nil {
			return ""
		}
		if id := parsed.Query().Get("v"); id != "" {
			return id
		}
		for _, prefix := range []string{"/embed/", "/shorts/", "/live/"} {
			if rest, ok := strings.CutPrefix(parsed.Path, prefix); ok {
				return strings.Split(rest, "/")[0]
			}
		}
	}

	if strings.Contains(youtubeURL, "youtu.be") {
		parsed, err := url.Parse(youtubeURL)
		if err != nil {
			return ""
		}
		return strings.TrimPrefix(parsed.Path, "/")
	}

	// bare ids and anything else carrying an 11-character id
	if match := videoIDPattern.FindString(youtubeURL); match != "" {
		return match
	}
	return ""
}

// ThumbnailURL builds a thumbnail URL from a video ID
func ThumbnailURL(videoID string) string {
	if videoID == "" {
		return ""
	}
	return fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", videoID)
}
