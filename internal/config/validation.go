package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if c.Worker.IntervalSeconds < 1 {
		return fmt.Errorf("worker.interval_seconds must be >= 1")
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	mode := strings.ToLower(strings.TrimSpace(b.Mode))
	switch mode {
	case "simulated":
		return nil
	case "kis":
		if strings.TrimSpace(b.KIS.AppKey) == "" {
			return fmt.Errorf("broker.kis.app_key is required in kis mode")
		}
		if strings.TrimSpace(b.KIS.AppSecret) == "" {
			return fmt.Errorf("broker.kis.app_secret is required in kis mode")
		}
		if strings.TrimSpace(b.KIS.AccountNo) == "" {
			return fmt.Errorf("broker.kis.account_no is required in kis mode")
		}
		return nil
	default:
		return fmt.Errorf("broker.mode must be \"simulated\" or \"kis\", got %q", b.Mode)
	}
}

func (n *NotifyConfig) validate() error {
	if !n.Telegram.Enabled {
		return nil
	}
	if strings.TrimSpace(n.Telegram.BotToken) == "" {
		return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
	}
	if strings.TrimSpace(n.Telegram.ChatID) == "" {
		return fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled")
	}
	return nil
}
