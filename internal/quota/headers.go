package quota

import (
	"net/http"
	"strings"

	"github.com/hitoshi/quotaball/internal/model"
)

// NormalizeBearerToken はトークンに "Bearer " プレフィックスを付与する。
// 既にプレフィックスがある場合（大文字小文字を問わない）はそのまま返す。
func NormalizeBearerToken(input string) string {
	token := strings.TrimSpace(input)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return token
	}
	return "Bearer " + token
}

// NormalizeCookie はCookieヘッダー値を正規化する。
// cf_clearance= を含まない値は cf_clearance の値とみなして補完する。
func NormalizeCookie(input string) string {
	cookie := strings.TrimSpace(input)
	if cookie == "" {
		return ""
	}
	if strings.Contains(cookie, "cf_clearance=") {
		return cookie
	}
	return "cf_clearance=" + cookie
}

// userAgentOrDefault は空のUser-AgentをDefaultUserAgentで置き換える。
func userAgentOrDefault(ua string) string {
	if ua = strings.TrimSpace(ua); ua != "" {
		return ua
	}
	return model.DefaultUserAgent
}

// applyHeaders は認証情報とブラウザ互換ヘッダーをリクエストに設定する。
func applyHeaders(req *http.Request, base string, creds model.Credentials, requestID string) {
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Referer", base+"/dashboard")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgentOrDefault(creds.UserAgent))
	req.Header.Set("X-Request-ID", requestID)

	if token := NormalizeBearerToken(creds.AuthToken); token != "" {
		req.Header.Set("Authorization", token)
	}
	if cookie := NormalizeCookie(creds.Cookie); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
}
