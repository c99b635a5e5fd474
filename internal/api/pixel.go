package api

import (
	"net/http"

	"github.com/ignite/lead-engagement/internal/normalize"
	"github.com/ignite/lead-engagement/internal/pkg/logger"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// handlePixel records an open and serves the image. The image is always
// returned, whatever happens during processing; a broken image in the
// reader's client would reveal the tracker.
func (s *Server) handlePixel(w http.ResponseWriter, r *http.Request) {
	defer servePixel(w)

	email := normalize.NormalizeEmail(r.URL.Query().Get("e"))
	if email == "" {
		return
	}
	messageRef := r.URL.Query().Get("m")
	ua := r.Header.Get("User-Agent")
	ip := realIP(r)

	result, err := s.processor.ProcessPixelOpen(r.Context(), email, messageRef, ua, ip)
	if err != nil {
		logger.Error("pixel open processing failed",
			"email", email,
			"message_ref", messageRef,
			"error", err.Error())
		return
	}
	logger.Debug("pixel open recorded",
		"email", email,
		"message_ref", messageRef,
		"human", result.Verdict.IsHuman,
		"scored", result.Scored)
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}
