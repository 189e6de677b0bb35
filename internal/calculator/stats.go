package calculator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/chamaledger/internal/models"
)

// RecentWindow is the trailing window for recent activity counts.
const RecentWindow = 30 * 24 * time.Hour

// Stats is the dashboard aggregate for one group. It is recomputed on every
// read from the canonical group and transaction log and never persisted.
type Stats struct {
	TotalBalance               decimal.Decimal `json:"totalBalance"`
	TotalMembers               int             `json:"totalMembers"`
	ActiveMembers              int             `json:"activeMembers"`
	ContributingMembers        int             `json:"contributingMembers"`
	ParticipationRate          decimal.Decimal `json:"participationRate"`
	TotalContributions         decimal.Decimal `json:"totalContributions"`
	AvgContributionPerActive   decimal.Decimal `json:"avgContributionPerActive"`
	ContributionCompletionRate decimal.Decimal `json:"contributionCompletionRate"`
	RecentTransactions         int             `json:"recentTransactions"`
	RecentContributions        int             `json:"recentContributions"`
}

// MemberSummary is one member's row in the group detail view.
type MemberSummary struct {
	UserID            string              `json:"userId"`
	Role              models.Role         `json:"role"`
	Status            models.MemberStatus `json:"status"`
	TotalContributed  decimal.Decimal     `json:"totalContributed"`
	ContributionCount int                 `json:"contributionCount"`
	ShareOfTotal      decimal.Decimal     `json:"shareOfTotal"` // percent of all contributions
}

// TotalBalance sums every account balance, rounded to cents.
func TotalBalance(group *models.Group) decimal.Decimal {
	return group.TotalBalance().Round(2)
}

// ActiveMembers counts members that are active and still reference a user.
func ActiveMembers(members []models.Membership) int {
	n := 0
	for _, m := range members {
		if m.IsActive() {
			n++
		}
	}
	return n
}

// ContributingMembers counts members with a positive contribution total.
func ContributingMembers(members []models.Membership) int {
	n := 0
	for _, m := range members {
		if m.Contributions.Total.IsPositive() {
			n++
		}
	}
	return n
}

// TotalContributions sums contribution totals across members.
func TotalContributions(members []models.Membership) decimal.Decimal {
	total := decimal.Zero
	for _, m := range members {
		total = total.Add(m.Contributions.Total)
	}
	return total
}

// ParticipationRate is contributing / total members as a percentage in
// [0, 100]. Zero members gives zero.
func ParticipationRate(members []models.Membership) decimal.Decimal {
	if len(members) == 0 {
		return decimal.Zero
	}
	contributing := decimal.NewFromInt(int64(ContributingMembers(members)))
	return contributing.Div(decimal.NewFromInt(int64(len(members)))).Mul(hundred).Round(2)
}

// AvgContributionPerActive divides total contributions by active members,
// zero when there are no active members.
func AvgContributionPerActive(members []models.Membership) decimal.Decimal {
	active := ActiveMembers(members)
	if active == 0 {
		return decimal.Zero
	}
	return TotalContributions(members).Div(decimal.NewFromInt(int64(active))).Round(2)
}

// ContributionCompletionRate compares the average contribution per active
// member with the monthly target, as a percentage. Zero when no target is set.
func ContributionCompletionRate(avgPerActive, monthlyTarget decimal.Decimal) decimal.Decimal {
	if !monthlyTarget.IsPositive() {
		return decimal.Zero
	}
	return avgPerActive.Div(monthlyTarget).Mul(hundred).Round(2)
}

// RecentActivity counts transactions, and contributions among them, created
// within RecentWindow before now.
func RecentActivity(transactions []models.Transaction, now time.Time) (all, contributions int) {
	cutoff := now.Add(-RecentWindow).Unix()
	for _, tx := range transactions {
		if tx.CreatedAt < cutoff || tx.CreatedAt > now.Unix() {
			continue
		}
		all++
		if tx.Type == models.TransactionContribution {
			contributions++
		}
	}
	return all, contributions
}

// GroupStats computes every dashboard aggregate for a group.
func GroupStats(group *models.Group, transactions []models.Transaction, now time.Time) Stats {
	avg := AvgContributionPerActive(group.Members)
	recent, recentContribs := RecentActivity(transactions, now)

	return Stats{
		TotalBalance:               TotalBalance(group),
		TotalMembers:               len(group.Members),
		ActiveMembers:              ActiveMembers(group.Members),
		ContributingMembers:        ContributingMembers(group.Members),
		ParticipationRate:          ParticipationRate(group.Members),
		TotalContributions:         TotalContributions(group.Members).Round(2),
		AvgContributionPerActive:   avg,
		ContributionCompletionRate: ContributionCompletionRate(avg, group.Settings.ContributionSchedule.MonthlyTarget()),
		RecentTransactions:         recent,
		RecentContributions:        recentContribs,
	}
}

// MemberSummaries returns one row per member, largest contributor first.
func MemberSummaries(group *models.Group) []MemberSummary {
	total := TotalContributions(group.Members)
	summaries := make([]MemberSummary, 0, len(group.Members))

	for _, m := range group.Members {
		share := decimal.Zero
		if total.IsPositive() {
			share = m.Contributions.Total.Div(total).Mul(hundred).Round(2)
		}
		summaries = append(summaries, MemberSummary{
			UserID:            m.UserID,
			Role:              m.Role,
			Status:            m.Status,
			TotalContributed:  m.Contributions.Total,
			ContributionCount: len(m.Contributions.History),
			ShareOfTotal:      share,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].TotalContributed.GreaterThan(summaries[j].TotalContributed)
	})
	return summaries
}
