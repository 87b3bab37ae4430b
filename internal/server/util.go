package server

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/drowsy/internal/face"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// decodeFrames accepts either a single frame object or an array of frames.
func decodeFrames(body []byte) ([]face.Frame, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var frames []face.Frame
		if err := json.Unmarshal(body, &frames); err != nil {
			return nil, err
		}
		return frames, nil
	}
	var f face.Frame
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, err
	}
	return []face.Frame{f}, nil
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
