package service

import (
	"net/url"
	"regexp"
	"strings"
)

const ReferralPrefix = "ref_"

var referralCodeRe = regexp.MustCompile(`^` + ReferralPrefix + `(\d+)$`)

// ParseReferralCode returns the referrer id encoded in a /start payload. Malformed
// payloads are reported the same way as empty ones.
func ParseReferralCode(payload string) (string, bool) {
	m := referralCodeRe.FindStringSubmatch(strings.TrimSpace(payload))
	if m == nil {
		return "", false
	}
	return m[1], true
}

func ReferralCode(userID string) string {
	return ReferralPrefix + userID
}

func ReferralLink(botUsername, userID string) string {
	q := url.Values{}
	q.Set("start", ReferralCode(userID))
	return "https://t.me/" + strings.TrimPrefix(botUsername, "@") + "?" + q.Encode()
}
