package server

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"github.com/voiceinvoice/voice-invoice/internal/errs"
)

// audioContentType settles the content type of an upload: the declared type
// when it is specific, else the sniffed type, else the file extension.
// Anything that is not audio is rejected.
func audioContentType(declared string, data []byte, filename string) (string, error) {
	contentType := normalizeType(declared)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ""
		if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
			contentType = kind.MIME.Value
		}
	}
	if contentType == "" {
		contentType = normalizeType(mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))))
	}
	if !isAudio(contentType) {
		if contentType == "" {
			return "", errs.BadInput("could not determine the audio format of %q", filename)
		}
		return "", errs.BadInput("unsupported content type %q: expected an audio file", contentType)
	}
	return contentType, nil
}

func normalizeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

// isAudio accepts audio/* plus the container types browsers record into.
func isAudio(contentType string) bool {
	switch contentType {
	case "video/webm", "video/mp4", "application/ogg":
		return true
	}
	return strings.HasPrefix(contentType, "audio/")
}

func extensionFor(contentType string) string {
	switch contentType {
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg", "application/ogg":
		return ".ogg"
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/mp4", "audio/m4a", "audio/x-m4a", "video/mp4":
		return ".m4a"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	}
	if kind := filetype.GetType(strings.TrimPrefix(contentType, "audio/")); kind != filetype.Unknown {
		return "." + kind.Extension
	}
	return ".bin"
}
