// Package bot delivers stress alerts and answers queries over Telegram.
package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"bondwatch/internal/domain"
)

// StressReader is the slice of the stress service the bot queries.
type StressReader interface {
	CurrentStress(ctx context.Context) (domain.StressSignal, error)
	RecentSignals(ctx context.Context, f domain.SignalFilter) ([]domain.TradingSignal, error)
}

// Bot wraps the Telegram connection. A nil *Bot is a valid no-op alerter, so
// callers can wire it unconditionally.
type Bot struct {
	bot    *tele.Bot
	chatID int64
}

// StartTelegramBot connects to Telegram, registers the commands, and starts
// polling in the background. Without TELEGRAM_BOT_TOKEN it returns nil and
// the service runs without Telegram.
func StartTelegramBot(svc StressReader, chatID int64) *Bot {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/stress", func(c tele.Context) error {
		s, err := svc.CurrentStress(context.Background())
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching stress signal: %v", err))
		}
		return c.Send(formatStress(s))
	})

	b.Handle("/signals", func(c tele.Context) error {
		filter := domain.SignalFilter{Limit: 10}
		if args := c.Args(); len(args) > 0 {
			filter.Symbol = strings.ToUpper(args[0])
		}
		signals, err := svc.RecentSignals(context.Background(), filter)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching signals: %v", err))
		}
		return c.Send(formatSignals(signals))
	})

	log.Println("Telegram bot started")
	go b.Start()
	return &Bot{bot: b, chatID: chatID}
}

// TierEscalation pushes an alert when a cycle raises the stress tier. It
// satisfies the service's Alerter interface.
func (b *Bot) TierEscalation(ctx context.Context, result domain.CycleResult) {
	if b == nil || b.bot == nil || b.chatID == 0 {
		return
	}
	if _, err := b.bot.Send(tele.ChatID(b.chatID), formatEscalation(result)); err != nil {
		log.Printf("telegram alert error: %v", err)
	}
}

func formatStress(s domain.StressSignal) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Bond Stress: %s\n", tierEmoji(s.Tier), s.Tier)
	fmt.Fprintf(&sb, "Score: %.0f  Confidence: %.0f/10\n", s.CompositeScore, s.Confidence)
	fmt.Fprintf(&sb, "As of: %s\n", s.Timestamp.Format("2006-01-02"))
	sb.WriteString(s.Rationale)
	return sb.String()
}

func formatSignals(signals []domain.TradingSignal) string {
	if len(signals) == 0 {
		return "No signals recorded yet."
	}
	var sb strings.Builder
	sb.WriteString("Recent signals:\n")
	for _, s := range signals {
		fmt.Fprintf(&sb, "%s %s %s  conf %.0f  size %.2f%%  horizon %dd\n",
			s.Timestamp.Format("01-02"), s.Symbol, s.Direction,
			s.Confidence, s.PositionSize*100, s.HorizonDays)
	}
	return sb.String()
}

func formatEscalation(result domain.CycleResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Bond stress escalated to %s\n", tierEmoji(result.Stress.Tier), result.Stress.Tier)
	fmt.Fprintf(&sb, "Score %.0f, confidence %.0f/10\n", result.Stress.CompositeScore, result.Stress.Confidence)
	sb.WriteString(result.Stress.Rationale)

	directional := 0
	for _, s := range result.Signals {
		if s.Direction != domain.DirectionHold {
			directional++
			fmt.Fprintf(&sb, "\n%s %s @ %.2f  stop %.2f  take %.2f  size %.2f%%",
				s.Direction, s.Symbol, s.EntryPrice, s.StopLoss, s.TakeProfit, s.PositionSize*100)
		}
	}
	if directional == 0 {
		sb.WriteString("\nNo directional signals this cycle.")
	}
	return sb.String()
}

func tierEmoji(t domain.Tier) string {
	switch t {
	case domain.TierNow:
		return "🔴"
	case domain.TierSoon:
		return "🟠"
	case domain.TierWatch:
		return "🟡"
	default:
		return "🟢"
	}
}
