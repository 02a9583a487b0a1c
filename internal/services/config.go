package services

import (
	"github.com/yungbote/inboxpilot-backend/internal/platform/envutil"
)

type Config struct {
	// PersonalityMax caps the stored personality list; oldest entries drop first.
	PersonalityMax int
	// OnboardingDays is how far back onboarding reads the mailbox.
	OnboardingDays int
	// OnboardingFetchLimit caps messages fetched per onboarding run.
	OnboardingFetchLimit int
}

func ConfigFromEnv() Config {
	return Config{
		PersonalityMax:       envutil.Int("PERSONALITY_MAX_TRAITS", 10),
		OnboardingDays:       envutil.Int("ONBOARDING_LOOKBACK_DAYS", 7),
		OnboardingFetchLimit: envutil.Int("ONBOARDING_FETCH_LIMIT", 200),
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.PersonalityMax <= 0 {
		c.PersonalityMax = 10
	}
	if c.OnboardingDays <= 0 {
		c.OnboardingDays = 7
	}
	if c.OnboardingFetchLimit <= 0 {
		c.OnboardingFetchLimit = 200
	}
	return c
}
