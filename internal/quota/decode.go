package quota

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/quotaball/internal/model"
)

// subscriptionsResponse は /subscriptions/list のレスポンス。
type subscriptionsResponse struct {
	Subscriptions *[]subscriptionPayload `json:"subscriptions"`
}

// subscriptionPayload はレスポンス中の1エントリ。
// プロバイダによってidやused_quotaが無い場合があるため全てポインタで受ける。
type subscriptionPayload struct {
	ID             json.RawMessage `json:"id"`
	Name           string          `json:"name"`
	TotalQuota     *float64        `json:"total_quota"`
	RemainingQuota *float64        `json:"remaining_quota"`
	UsedQuota      *float64        `json:"used_quota"`
	Status         string          `json:"status"`
}

// errSchema はレスポンスが想定スキーマを満たさない場合のエラー。
var errSchema = errors.New("unexpected response schema")

// Decoder はレスポンスボディをサブスクリプション一覧に変換する。
type Decoder struct {
	policy *bluemonday.Policy
}

// NewDecoder はDecoderを生成する。
// 表示名に含まれるマークアップはbluemondayのStrictPolicyで除去する。
func NewDecoder() *Decoder {
	return &Decoder{policy: bluemonday.StrictPolicy()}
}

// Decode はレスポンスボディをデコードする。
// スキーマに合わない場合はerrSchemaをラップしたエラーを返す。
func (d *Decoder) Decode(body []byte) ([]model.Subscription, error) {
	var resp subscriptionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", errSchema, err)
	}
	if resp.Subscriptions == nil {
		return nil, fmt.Errorf("%w: subscriptions field is missing", errSchema)
	}

	payloads := *resp.Subscriptions
	subs := make([]model.Subscription, 0, len(payloads))
	for i, p := range payloads {
		s, err := d.convert(p)
		if err != nil {
			return nil, fmt.Errorf("%w: subscriptions[%d]: %v", errSchema, i, err)
		}
		subs = append(subs, s)
	}
	return subs, nil
}

func (d *Decoder) convert(p subscriptionPayload) (model.Subscription, error) {
	name := d.sanitize(p.Name)
	id, err := decodeID(p.ID)
	if err != nil {
		return model.Subscription{}, err
	}
	if id == "" {
		id = strings.TrimSpace(p.Name)
	}
	if id == "" {
		return model.Subscription{}, errors.New("entry has neither id nor name")
	}
	if name == "" {
		name = id
	}

	if p.TotalQuota == nil {
		return model.Subscription{}, errors.New("total_quota is missing")
	}
	if p.RemainingQuota == nil && p.UsedQuota == nil {
		return model.Subscription{}, errors.New("remaining_quota and used_quota are both missing")
	}

	total := *p.TotalQuota
	var used, remaining float64
	switch {
	case p.RemainingQuota != nil && p.UsedQuota != nil:
		used, remaining = *p.UsedQuota, *p.RemainingQuota
	case p.RemainingQuota != nil:
		remaining = *p.RemainingQuota
		used = total - remaining
		if used < 0 {
			used = 0
		}
	default:
		used = *p.UsedQuota
		remaining = total - used
	}

	status := parseStatus(p.Status)
	if status == "" {
		status = model.DeriveStatus(total, remaining)
	}

	return model.Subscription{
		ID:             id,
		DisplayName:    name,
		QuotaUsed:      used,
		QuotaTotal:     total,
		QuotaRemaining: remaining,
		Status:         status,
	}, nil
}

// sanitize はマークアップを除去し、エスケープされたエンティティを戻す。
func (d *Decoder) sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(d.policy.Sanitize(s)))
}

// decodeID は文字列または数値のidを文字列として返す。
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
		return n.String(), nil
	}
	return "", fmt.Errorf("id has unsupported type: %s", string(raw))
}

func parseStatus(s string) model.SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return model.SubscriptionStatusActive
	case "exhausted", "depleted":
		return model.SubscriptionStatusExhausted
	case "unknown":
		return model.SubscriptionStatusUnknown
	default:
		return ""
	}
}
