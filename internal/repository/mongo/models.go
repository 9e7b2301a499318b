package mongo

import (
	"fmt"
	"strconv"
	"time"

	"chypto_bot/internal/model"
)

// Field names match the documents written by the first version of the bot.
const (
	fieldID          = "_id"
	fieldBalance     = "Balance"
	fieldReferredBy  = "referredBy"
	fieldReferredAt  = "referredAt"
	fieldReferrals   = "referrals"
	fieldChatAddress = "chat_id"
	fieldCreatedAt   = "createdAt"
)

// accountModel mirrors a user document. ChatAddress holds a number in documents
// written by the first version and a string for addresses that are not numeric.
type accountModel struct {
	ID          string     `bson:"_id"`
	Balance     int64      `bson:"Balance"`
	ReferredBy  *string    `bson:"referredBy"`
	ReferredAt  *time.Time `bson:"referredAt,omitempty"`
	Referrals   []string   `bson:"referrals,omitempty"`
	ChatAddress any        `bson:"chat_id"`
	CreatedAt   time.Time  `bson:"createdAt"`
}

func fromAccountModel(m *accountModel) *model.Account {
	return &model.Account{
		ID:          m.ID,
		Balance:     m.Balance,
		ReferredBy:  m.ReferredBy,
		Referrals:   append([]string(nil), m.Referrals...),
		ChatAddress: decodeChatAddress(m.ChatAddress),
		CreatedAt:   m.CreatedAt,
	}
}

// joinedAt falls back to the account creation time for referees linked before
// referredAt was recorded.
func (m *accountModel) joinedAt() time.Time {
	if m.ReferredAt != nil {
		return *m.ReferredAt
	}
	return m.CreatedAt
}

// encodeChatAddress stores Telegram chat ids as numbers, the way existing
// documents hold them.
func encodeChatAddress(address string) any {
	if n, err := strconv.ParseInt(address, 10, 64); err == nil {
		return n
	}
	return address
}

func decodeChatAddress(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
