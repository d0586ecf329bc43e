package store

// Logical keys of the engine state. Every key is an independent atomicity
// unit; no operation spans more than one of them.
const (
	// KeyDiamonds holds the reward currency balance.
	KeyDiamonds = "diamonds"
	// KeyWhitelist holds the comma-separated set of permanently exempt targets.
	KeyWhitelist = "whitelist"
	// KeyAppPIN holds the settings PIN.
	KeyAppPIN = "app_pin"
	// KeyLanguage holds the UI language preference ("en" or "tr").
	KeyLanguage = "language"
	// KeyDarkMode holds the theme preference.
	KeyDarkMode = "dark_mode"
	// KeySetupComplete is set once onboarding has finished; enforcement is
	// disabled until then.
	KeySetupComplete = "setup_complete"
	// KeyProtectionEnabled lets settings suspend enforcement without
	// touching the setup flag.
	KeyProtectionEnabled = "protection_enabled"

	// UnlockKeyPrefix prefixes per-target unlock expiries (unix millis).
	UnlockKeyPrefix = "unlock_"

	// KeyClaimedTasks holds the comma-separated ids claimed today.
	KeyClaimedTasks = "claimed_tasks"
	// KeyLastTaskDate holds the date (YYYYMMDD) the task list was generated for.
	KeyLastTaskDate = "last_task_date"

	// Time mission fields.
	KeyMissionActive     = "time_mission_active"
	KeyMissionStepsGoal  = "time_mission_steps_goal"
	KeyMissionEndTime    = "time_mission_end_time"
	KeyMissionReward     = "time_mission_reward"
	KeyMissionStartSteps = "time_mission_start_steps"
	// KeyMissionNextFire persists the chosen wake time so the daily trigger
	// survives restarts.
	KeyMissionNextFire = "time_mission_next_fire"

	// Step baseline fields.
	KeyLastKnownTotalSteps = "last_known_total_steps"
	KeyInitialSteps        = "initial_steps"
	KeyLastDate            = "last_date"
)

// UnlockKey returns the ledger key for a target's unlock expiry.
func UnlockKey(target string) string {
	return UnlockKeyPrefix + target
}
