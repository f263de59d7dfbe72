package linenotify

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TargetType identifies what a token delivers to.
type TargetType string

const (
	TargetUser  TargetType = "USER"
	TargetGroup TargetType = "GROUP"
)

// NullTarget is the literal the service reports when a token has no named target.
const NullTarget = "null"

// TokenResult is the response of the token exchange. Status and Message are
// the in-band outcome and may be absent on success.
type TokenResult struct {
	AccessToken string `json:"access_token"`
	Status      int    `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
}

// EffectiveStatus is Status, or 200 when the service omitted it but issued a token.
func (result TokenResult) EffectiveStatus() int {
	if result.Status == 0 && result.AccessToken != "" {
		return http.StatusOK
	}
	return result.Status
}

// NotifyResult carries the in-band status the service returns for notify and revoke.
type NotifyResult struct {
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	RateLimit RateLimit `json:"-"`
}

// OK reports whether the service accepted the call.
func (result NotifyResult) OK() bool {
	return result.Status == http.StatusOK
}

// StatusResult extends NotifyResult with the token's delivery target.
type StatusResult struct {
	NotifyResult
	TargetType TargetType `json:"targetType"`
	Target     string     `json:"target"`
}

// HasTarget is false when the service reports the "null" target.
func (result StatusResult) HasTarget() bool {
	return result.Target != "" && result.Target != NullTarget
}

// ImageFile is an image uploaded as a binary form part.
type ImageFile struct {
	Name    string
	Content io.Reader
}

// NotifyOptions are the optional attachments of a notification. A field is
// sent only when it holds a non-zero value, so a sticker id of 0 is never sent.
type NotifyOptions struct {
	ImageThumbnail       string
	ImageFullsize        string
	ImageFile            *ImageFile
	StickerPackageID     int
	StickerID            int
	NotificationDisabled bool
}

// RateLimit mirrors the X-RateLimit-* headers of an API response.
type RateLimit struct {
	Limit          int
	Remaining      int
	ImageLimit     int
	ImageRemaining int
	Reset          time.Time
}

const (
	headerRateLimit          = "X-RateLimit-Limit"
	headerRateRemaining      = "X-RateLimit-Remaining"
	headerRateImageLimit     = "X-RateLimit-ImageLimit"
	headerRateImageRemaining = "X-RateLimit-ImageRemaining"
	headerRateReset          = "X-RateLimit-Reset"
)

func parseRateLimit(header http.Header) RateLimit {
	rateLimit := RateLimit{
		Limit:          headerInt(header, headerRateLimit),
		Remaining:      headerInt(header, headerRateRemaining),
		ImageLimit:     headerInt(header, headerRateImageLimit),
		ImageRemaining: headerInt(header, headerRateImageRemaining),
	}
	if resetSeconds := headerInt(header, headerRateReset); resetSeconds > 0 {
		rateLimit.Reset = time.Unix(int64(resetSeconds), 0).UTC()
	}
	return rateLimit
}

func headerInt(header http.Header, key string) int {
	rawValue := strings.TrimSpace(header.Get(key))
	if rawValue == "" {
		return 0
	}
	parsedValue, parseErr := strconv.Atoi(rawValue)
	if parseErr != nil {
		return 0
	}
	return parsedValue
}
