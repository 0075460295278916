package quota

import "github.com/hitoshi/quotaball/internal/model"

// ClassifyHTTPStatus はHTTPステータスコードをフェッチ結果の分類に変換する。
// 2xxは空文字（成功）を返す。
func ClassifyHTTPStatus(statusCode int) model.ErrorKind {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return ""
	case statusCode == 401 || statusCode == 403:
		return model.ErrorKindAuth
	default:
		// 429/5xx/その他はリモート側の一時的な失敗として次のサイクルで再試行する
		return model.ErrorKindNetwork
	}
}
