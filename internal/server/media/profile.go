package media

import (
	"strconv"
	"strings"
)

// Profile names a pre-rendered image variant.
type Profile string

const (
	ProfileSmall  Profile = "small"
	ProfileMedium Profile = "medium"
	ProfileLarge  Profile = "large"
)

// Physical pixel widths at which a larger variant is chosen.
const (
	smallMaxWidth  = 480
	mediumMaxWidth = 1080
)

// ParseProfile accepts the profile names case-insensitively.
func ParseProfile(s string) (Profile, bool) {
	switch Profile(strings.ToLower(strings.TrimSpace(s))) {
	case ProfileSmall:
		return ProfileSmall, true
	case ProfileMedium:
		return ProfileMedium, true
	case ProfileLarge:
		return ProfileLarge, true
	}
	return "", false
}

// ProfileFromHeaders picks a variant from the device hints. An explicit
// profile wins; otherwise the CSS width times the pixel ratio decides.
// Missing or unparsable hints select medium.
func ProfileFromHeaders(profile, width, dpr string) Profile {
	if p, ok := ParseProfile(profile); ok {
		return p
	}

	w, err := strconv.ParseFloat(strings.TrimSpace(width), 64)
	if err != nil || w <= 0 {
		return ProfileMedium
	}
	ratio := 1.0
	if r, err := strconv.ParseFloat(strings.TrimSpace(dpr), 64); err == nil && r > 0 {
		ratio = r
	}

	switch px := w * ratio; {
	case px <= smallMaxWidth:
		return ProfileSmall
	case px <= mediumMaxWidth:
		return ProfileMedium
	default:
		return ProfileLarge
	}
}
