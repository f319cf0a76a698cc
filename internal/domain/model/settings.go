package model

// DefaultStarsPerReferral applies until an administrator changes the rate.
const DefaultStarsPerReferral int64 = 2

// RewardSettings is the administrator-controlled reward configuration.
type RewardSettings struct {
	StarsPerReferral int64
}

const SettingStarsPerReferral = "stars_per_referral"
