package utils

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var unsafeNameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

// OutputNameFromURL returns the final path segment of link, unescaped and
// stripped of characters unsafe for a file name.
func OutputNameFromURL(link string) string {
	parsedURL, err := url.Parse(link)
	if err != nil {
		return "download"
	}
	name := path.Base(parsedURL.EscapedPath())
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	switch name {
	case "", ".", "..", "/":
		return "download"
	}
	name = strings.TrimSpace(unsafeNameRegex.ReplaceAllString(name, "_"))
	if strings.Trim(name, "_.") == "" {
		return "download"
	}
	return name
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// ParseSize accepts plain byte counts as well as human sizes like "20MB" or "64MiB".
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return int64(n), nil
}

func FormatSpeed(bytes int64, elapsed time.Duration) string {
	if elapsed <= 0 || bytes <= 0 {
		return "0 B/s"
	}
	bps := float64(bytes) / elapsed.Seconds()
	return humanize.Bytes(uint64(bps)) + "/s"
}
