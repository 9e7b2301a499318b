package bot

import (
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	textPleaseWait      = "😁 Please wait"
	textAlreadyReferred = "⚠️ You Have Been Referred Already!"
	textInvalidReferrer = "⚠️ Invalid referral link - referrer not found"
	textPointsReceived  = "🎉 You received Points for using a referral!, Check In Game"
	textTryAgain        = "⚠️ An error occurred. Please try again."

	welcomeTemplate = "🚀 <b>Get Ahead, Start Earning!</b>\n\n" +
		"Chypto connects you with rewarding tasks, don’t miss out! Follow us on Twitter and be the first to grab new earning opportunities!\n\n" +
		"🎮 <b>Complete Tasks, Earn Rewards!</b>\n\n" +
		"Join Chypto and turn simple tasks into real rewards, new tasks and earning opportunities!\n\n" +
		"Click CHYPTO To Start\n\n" +
		"Your Referral link is <a href=\"%[1]s\">%[1]s</a>"
)

type Links struct {
	FollowURL  string `mapstructure:"followURL"`
	ChannelURL string `mapstructure:"channelURL"`
}

func (l Links) withDefaults() Links {
	if l.FollowURL == "" {
		l.FollowURL = "https://x.com/@Chypto_Official"
	}
	if l.ChannelURL == "" {
		l.ChannelURL = "https://t.me/chyptochannel"
	}
	return l
}

func welcomeMessage(chatID int64, referralLink string, links Links) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(welcomeTemplate, html.EscapeString(referralLink)))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("🔥 Follow Us", links.FollowURL)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("🚀 Join Channel", links.ChannelURL)),
	)
	return msg
}
