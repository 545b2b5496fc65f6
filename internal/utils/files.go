package utils

import (
	"os"
	"strconv"
	"strings"
)

// FileExists reports whether anything exists at path
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// UniqueFilePath returns path unchanged when nothing exists there,
// otherwise the first free "base__N.ext" candidate with N >= 1.
// A leading dot is part of the name, not an extension separator.
func UniqueFilePath(path string) string {
	return UniqueFilePathFunc(path, FileExists)
}

// UniqueFilePathFunc is UniqueFilePath with a caller-supplied notion of
// which paths are taken
func UniqueFilePathFunc(path string, taken func(string) bool) string {
	if !taken(path) {
		return path
	}

	base, ext := path, ""
	if dot := strings.LastIndex(path, "."); dot != -1 && dot > lastSeparator(path)+1 {
		base, ext = path[:dot], path[dot:]
	}

	for n := 1; ; n++ {
		candidate := base + "__" + strconv.Itoa(n) + ext
		if !taken(candidate) {
			return candidate
		}
	}
}

func lastSeparator(path string) int {
	return strings.LastIndexAny(path, `/\`)
}
