package domain

import "time"

// RiskLevel buckets a department's simulated-phishing success rate.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// CampaignStats holds engagement counts and rates for one campaign.
// Rates are percentages in [0, 100].
type CampaignStats struct {
	CampaignID  string  `json:"campaign_id"`
	Targeted    int     `json:"targeted"`
	Sent        int     `json:"sent"`
	Opened      int     `json:"opened"`
	Clicked     int     `json:"clicked"`
	Submitted   int     `json:"submitted"`
	Reported    int     `json:"reported"`
	OpenRate    float64 `json:"open_rate"`
	ClickRate   float64 `json:"click_rate"`
	SuccessRate float64 `json:"success_rate"`
	ReportRate  float64 `json:"report_rate"`
}

// DepartmentRiskSummary is derived per query and never stored.
type DepartmentRiskSummary struct {
	Department     string    `json:"department"`
	RecipientCount int       `json:"recipient_count"`
	Sent           int       `json:"sent"`
	Opened         int       `json:"opened"`
	Clicked        int       `json:"clicked"`
	Submitted      int       `json:"submitted"`
	Reported       int       `json:"reported"`
	SuccessRate    float64   `json:"success_rate"`
	RiskLevel      RiskLevel `json:"risk_level"`
}

// Dashboard is the overall analytics view for presentation.
type Dashboard struct {
	TotalCampaigns     int                     `json:"total_campaigns"`
	ActiveCampaigns    int                     `json:"active_campaigns"`
	TotalRecipients    int                     `json:"total_recipients"`
	TotalEmailsSent    int                     `json:"total_emails_sent"`
	TotalEmailsOpened  int                     `json:"total_emails_opened"`
	TotalLinksClicked  int                     `json:"total_links_clicked"`
	TotalReported      int                     `json:"total_reported"`
	OverallSuccessRate float64                 `json:"overall_success_rate"`
	OverallReportRate  float64                 `json:"overall_report_rate"`
	DepartmentStats    []DepartmentRiskSummary `json:"department_stats"`
}

// Activity is a recent engagement event joined with display context.
type Activity struct {
	CampaignID   string    `json:"campaign_id"`
	CampaignName string    `json:"campaign_name"`
	RecipientID  string    `json:"recipient_id"`
	Department   string    `json:"department"`
	Kind         EventKind `json:"kind"`
	OccurredAt   time.Time `json:"occurred_at"`
}
