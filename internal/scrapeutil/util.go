package scrapeutil

import "os"

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TruncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength] + "..."
}
