package bot

import "strings"

// command identifies one chat command routed by keyword.
type command int

const (
	cmdNone command = iota
	cmdHelp
	cmdBudgetReset
	cmdGoalCreate
	cmdGoalList
	cmdGoalProgress
	cmdAdvice
	cmdStatsDaily
	cmdStatsWeekly
	cmdStatsCategories
	cmdStatsMonthly
)

type keywordRule struct {
	cmd command
	// exact rules match the whole trimmed message; the rest match by
	// substring containment, the behavior users have learned to lean on.
	exact   bool
	phrases []string
}

// keywordRules is evaluated in order; the first hit wins. Broad
// substring groups (monthly stats matches "status" and "summary") sit
// last so narrower phrases like "goal status" are not shadowed.
var keywordRules = []keywordRule{
	{cmd: cmdHelp, exact: true, phrases: []string{"/help", "help", "?"}},
	{cmd: cmdBudgetReset, exact: true, phrases: []string{"/budget", "new budget", "set budget"}},
	{cmd: cmdGoalCreate, phrases: []string{"/goal", "new goal", "savings goal"}},
	{cmd: cmdGoalList, phrases: []string{"my goals", "goals list"}},
	{cmd: cmdGoalProgress, phrases: []string{"goal status", "progress"}},
	{cmd: cmdAdvice, phrases: []string{"can i afford", "should i buy", "afford"}},
	{cmd: cmdStatsDaily, phrases: []string{"today"}},
	{cmd: cmdStatsWeekly, phrases: []string{"this week", "weekly"}},
	{cmd: cmdStatsCategories, phrases: []string{"categories", "breakdown", "expense summary"}},
	{cmd: cmdStatsMonthly, phrases: []string{"this month", "how much did i spend", "status", "summary"}},
}

const cancelKeyword = "cancel"

// matchCommand routes a text message to a command, or cmdNone when it
// should fall through to free-form extraction.
func matchCommand(text string) command {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, rule := range keywordRules {
		for _, phrase := range rule.phrases {
			if rule.exact {
				if t == phrase {
					return rule.cmd
				}
			} else if strings.Contains(t, phrase) {
				return rule.cmd
			}
		}
	}
	return cmdNone
}

func isCancel(text string) bool {
	return strings.ToLower(strings.TrimSpace(text)) == cancelKeyword
}
